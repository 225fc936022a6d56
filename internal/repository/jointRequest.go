package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/jmoiron/sqlx"
)

const (
	JointRequestStatusPending  = "pending"
	JointRequestStatusApproved = "approved"
	JointRequestStatusRejected = "rejected"
)

type JointRequestRepository interface {
	Insert(request *models.JointAccountRequest) (string, error)
	GetOne(id string) (*models.JointAccountRequest, bool, error)
	GetPendingByAccount(accountID string) (*models.JointAccountRequest, bool, error)
	ListByStatus(status string, limit, offset int) ([]models.JointAccountRequest, error)
	MarkAdminApproved(id string) error
	MarkDepositReceived(id string) error
	SetStatus(id, status string) (bool, error)
}

type JointRequestRepositoryImpl struct {
	db *sqlx.DB
}

func NewJointRequestRepository(db *sqlx.DB) JointRequestRepository {
	return &JointRequestRepositoryImpl{db: db}
}

func (repo *JointRequestRepositoryImpl) Insert(request *models.JointAccountRequest) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO joint_account_requests
			(account_id, requester_user_id, partner_first_name, partner_last_name,
			partner_email, partner_phone_number, document_url, deposit_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := repo.db.GetContext(ctx, &id, query,
		request.AccountID,
		request.RequesterUserID,
		request.PartnerFirstName,
		request.PartnerLastName,
		request.PartnerEmail,
		request.PartnerPhoneNumber,
		request.DocumentURL,
		request.DepositAmount,
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (repo *JointRequestRepositoryImpl) GetOne(id string) (*models.JointAccountRequest, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var request models.JointAccountRequest

	query := `SELECT * FROM joint_account_requests WHERE id = $1`

	err := repo.db.GetContext(ctx, &request, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &request, true, err
}

// GetPendingByAccount returns the outstanding invitation on an account, if
// any. An account carries at most one at a time.
func (repo *JointRequestRepositoryImpl) GetPendingByAccount(accountID string) (*models.JointAccountRequest, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var request models.JointAccountRequest

	query := `SELECT * FROM joint_account_requests WHERE account_id = $1 AND status = $2`

	err := repo.db.GetContext(ctx, &request, query, accountID, JointRequestStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &request, true, err
}

func (repo *JointRequestRepositoryImpl) ListByStatus(status string, limit, offset int) ([]models.JointAccountRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var requests []models.JointAccountRequest

	query := `
		SELECT * FROM joint_account_requests
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`

	err := repo.db.SelectContext(ctx, &requests, query, status, limit, offset)
	if err != nil {
		return nil, err
	}

	return requests, nil
}

func (repo *JointRequestRepositoryImpl) MarkAdminApproved(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE joint_account_requests SET admin_approved = true, updated_at = now()
		WHERE id = $1 AND status = $2`

	_, err := repo.db.ExecContext(ctx, query, id, JointRequestStatusPending)
	return err
}

func (repo *JointRequestRepositoryImpl) MarkDepositReceived(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE joint_account_requests SET deposit_received = true, updated_at = now()
		WHERE id = $1 AND status = $2`

	_, err := repo.db.ExecContext(ctx, query, id, JointRequestStatusPending)
	return err
}

// SetStatus moves a request to a terminal status. The pending precondition
// stops a rejected request from being resurrected by a late activation.
func (repo *JointRequestRepositoryImpl) SetStatus(id, status string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE joint_account_requests SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`

	result, err := repo.db.ExecContext(ctx, query, status, id, JointRequestStatusPending)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}
