package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/jmoiron/sqlx"
)

const (
	// UserAccountActiveStatus indicates that the user's account is active and fully functional.
	// The user can log in, perform transactions, and access all account features.
	UserAccountActiveStatus = "active"

	// UserAccountLockedStatus indicates that the user's account has been locked.
	// This status may be used due to security reasons, such as multiple failed login attempts,
	// suspicious activity, or administrative action. A locked account cannot be accessed until unlocked.
	UserAccountLockedStatus = "locked"

	UserRoleCustomer = "customer"
	UserRoleAdmin    = "admin"
)

type UserRepository interface {
	Insert(user *models.User, tx *sqlx.Tx) (string, error)
	GetOne(id string) (*models.User, bool, error)
	GetByEmail(email string) (*models.User, bool, error)
	GetAll() ([]models.User, error)
	CheckIfPhoneNumberExist(phoneNumber string) (bool, error)
	SetEmailVerified(id string) error
	SetQRVerified(id string, tx *sqlx.Tx) error
	EnableTransact(id string, tx *sqlx.Tx) error
	UpdatePassword(id, hashedPassword string) error
	ChangePin(id string, pin int) error
	Lock(id string) error
}

type UserRepositoryImpl struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (repo *UserRepositoryImpl) Insert(user *models.User, tx *sqlx.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string
	query := `
		INSERT INTO users (first_name, last_name, phone_number, email, role, hashed_password)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			user.FirstName,
			user.LastName,
			user.PhoneNumber,
			user.Email,
			user.Role,
			user.HashedPassword,
		).Scan(&id)
		if err != nil {
			return "", err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			user.FirstName,
			user.LastName,
			user.PhoneNumber,
			user.Email,
			user.Role,
			user.HashedPassword,
		)
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

func (repo *UserRepositoryImpl) GetOne(id string) (*models.User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user models.User

	query := `SELECT * FROM users WHERE id = $1 AND deleted_at IS NULL`

	err := repo.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

func (repo *UserRepositoryImpl) GetByEmail(email string) (*models.User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var user models.User

	query := `SELECT * FROM users WHERE email = $1 AND deleted_at IS NULL`

	err := repo.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &user, true, err
}

// GetAll returns every live user. The consistency scan walks this list, so
// the ordering is fixed to keep repeated scans comparable.
func (repo *UserRepositoryImpl) GetAll() ([]models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var users []models.User

	query := `SELECT * FROM users WHERE deleted_at IS NULL ORDER BY created_at`

	err := repo.db.SelectContext(ctx, &users, query)
	if err != nil {
		return nil, err
	}

	return users, nil
}

func (repo *UserRepositoryImpl) CheckIfPhoneNumberExist(phoneNumber string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var exists bool

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE phone_number = $1)`

	err := repo.db.GetContext(ctx, &exists, query, phoneNumber)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (repo *UserRepositoryImpl) SetEmailVerified(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET email_verified = true, updated_at = now() WHERE id = $1`

	_, err := repo.db.ExecContext(ctx, query, id)
	return err
}

// SetQRVerified flips the secret-key verification flag. Callers that also
// need to update the application projection should pass a transaction so the
// two flags cannot drift apart on a partial failure.
func (repo *UserRepositoryImpl) SetQRVerified(id string, tx *sqlx.Tx) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET qr_verified = true, updated_at = now() WHERE id = $1`

	if tx != nil {
		_, err := tx.ExecContext(ctx, query, id)
		return err
	}

	_, err := repo.db.ExecContext(ctx, query, id)
	return err
}

func (repo *UserRepositoryImpl) EnableTransact(id string, tx *sqlx.Tx) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET can_transact = true, updated_at = now() WHERE id = $1`

	if tx != nil {
		_, err := tx.ExecContext(ctx, query, id)
		return err
	}

	_, err := repo.db.ExecContext(ctx, query, id)
	return err
}

func (repo *UserRepositoryImpl) UpdatePassword(id, hashedPassword string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET hashed_password = $1, updated_at = now() WHERE id = $2`

	_, err := repo.db.ExecContext(ctx, query, hashedPassword, id)
	return err
}

func (repo *UserRepositoryImpl) ChangePin(id string, pin int) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET pin = $1, updated_at = now() WHERE id = $2`

	_, err := repo.db.ExecContext(ctx, query, pin, id)
	return err
}

func (repo *UserRepositoryImpl) Lock(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE users SET status = $1, updated_at = now() WHERE id = $2`

	_, err := repo.db.ExecContext(ctx, query, UserAccountLockedStatus, id)
	return err
}
