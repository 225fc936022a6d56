package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/jmoiron/sqlx"
)

const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusApproved = "approved"
	ApplicationStatusRejected = "rejected"
)

type ApplicationRepository interface {
	Insert(application *models.AccountApplication, tx *sqlx.Tx) (string, error)
	GetOne(id string) (*models.AccountApplication, bool, error)
	GetByUserID(userID string) (*models.AccountApplication, bool, error)
	ListByStatus(status string, limit, offset int) ([]models.AccountApplication, error)
	SetQRCodeVerified(id string, tx *sqlx.Tx) error
	Approve(id, decidedBy string, tx *sqlx.Tx) (bool, error)
	Reject(id, decidedBy, reason string) (bool, error)
	ForceApprove(id string) error
}

type ApplicationRepositoryImpl struct {
	db *sqlx.DB
}

func NewApplicationRepository(db *sqlx.DB) ApplicationRepository {
	return &ApplicationRepositoryImpl{db: db}
}

func (repo *ApplicationRepositoryImpl) Insert(application *models.AccountApplication, tx *sqlx.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO account_applications (user_id, email, full_name, account_type, qr_code_secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			application.UserID,
			application.Email,
			application.FullName,
			application.AccountType,
			application.QRCodeSecret,
		).Scan(&id)
		if err != nil {
			return "", err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			application.UserID,
			application.Email,
			application.FullName,
			application.AccountType,
			application.QRCodeSecret,
		)
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

func (repo *ApplicationRepositoryImpl) GetOne(id string) (*models.AccountApplication, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var application models.AccountApplication

	query := `SELECT * FROM account_applications WHERE id = $1`

	err := repo.db.GetContext(ctx, &application, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &application, true, err
}

func (repo *ApplicationRepositoryImpl) GetByUserID(userID string) (*models.AccountApplication, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var application models.AccountApplication

	// a user can re-apply after a rejection; the newest application is the
	// one the gate evaluates
	query := `SELECT * FROM account_applications WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`

	err := repo.db.GetContext(ctx, &application, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &application, true, err
}

func (repo *ApplicationRepositoryImpl) ListByStatus(status string, limit, offset int) ([]models.AccountApplication, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var applications []models.AccountApplication

	query := `
		SELECT * FROM account_applications
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`

	err := repo.db.SelectContext(ctx, &applications, query, status, limit, offset)
	if err != nil {
		return nil, err
	}

	return applications, nil
}

func (repo *ApplicationRepositoryImpl) SetQRCodeVerified(id string, tx *sqlx.Tx) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE account_applications SET qr_code_verified = true, updated_at = now() WHERE id = $1`

	if tx != nil {
		_, err := tx.ExecContext(ctx, query, id)
		return err
	}

	_, err := repo.db.ExecContext(ctx, query, id)
	return err
}

// Approve moves a pending application to approved. The status precondition
// makes the decision idempotent: an application that has already been decided
// is left untouched and the caller is told nothing changed.
func (repo *ApplicationRepositoryImpl) Approve(id, decidedBy string, tx *sqlx.Tx) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE account_applications
		SET status = $1, decided_by = $2, updated_at = now()
		WHERE id = $3 AND status = $4`

	var result sql.Result
	var err error

	if tx != nil {
		result, err = tx.ExecContext(ctx, query, ApplicationStatusApproved, decidedBy, id, ApplicationStatusPending)
	} else {
		result, err = repo.db.ExecContext(ctx, query, ApplicationStatusApproved, decidedBy, id, ApplicationStatusPending)
	}
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// ForceApprove is a repair write: it sets the status unconditionally so an
// operator can pull a drifted application back in line with the rest of the
// user's records. Running it twice is a no-op the second time.
func (repo *ApplicationRepositoryImpl) ForceApprove(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE account_applications SET status = $1, updated_at = now() WHERE id = $2`

	_, err := repo.db.ExecContext(ctx, query, ApplicationStatusApproved, id)
	return err
}

func (repo *ApplicationRepositoryImpl) Reject(id, decidedBy, reason string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE account_applications
		SET status = $1, decided_by = $2, rejection_reason = $3, updated_at = now()
		WHERE id = $4 AND status = $5`

	result, err := repo.db.ExecContext(ctx, query, ApplicationStatusRejected, decidedBy, reason, id, ApplicationStatusPending)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}
