package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	AccountActiveStatus = "active"
	AccountClosedStatus = "closed"
)

type AccountRepository interface {
	Insert(account *models.Account, tx *sqlx.Tx) (string, error)
	GetOne(id string) (*models.Account, bool, error)
	GetAllByUserId(userID string) ([]models.Account, bool, error)
	FindByAccountNumber(accountNumber string) (*models.Account, bool, error)
	HasActiveByUserId(userID string) (bool, error)
	Credit(accountID string, amount decimal.Decimal) (bool, error)
	Debit(accountID string, amount decimal.Decimal) (bool, error)
	LinkJointHolder(accountID, holderUserID string) error
	MarkJointRestricted(accountID string) error
	Close(id string) error
}

type AccountRepositoryImpl struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &AccountRepositoryImpl{db: db}
}

func (repo *AccountRepositoryImpl) Insert(account *models.Account, tx *sqlx.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO accounts (user_id, account_type, account_number)
		VALUES ($1, $2, $3)
		RETURNING id`
	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			account.UserID,
			account.AccountType,
			account.AccountNumber,
		).Scan(&id)
		if err != nil {
			return "", err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			account.UserID,
			account.AccountType,
			account.AccountNumber,
		)
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

func (repo *AccountRepositoryImpl) GetOne(id string) (*models.Account, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var account models.Account

	query := `SELECT * FROM accounts WHERE id = $1 AND deleted_at IS NULL`

	err := repo.db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &account, true, err
}

func (repo *AccountRepositoryImpl) GetAllByUserId(userID string) ([]models.Account, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var accounts []models.Account

	// a joint holder sees the account the same way the primary holder does
	query := `
		SELECT * FROM accounts
		WHERE (user_id = $1 OR joint_holder_id = $1) AND deleted_at IS NULL
		ORDER BY created_at`

	err := repo.db.SelectContext(ctx, &accounts, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return accounts, len(accounts) > 0, nil
}

func (repo *AccountRepositoryImpl) FindByAccountNumber(accountNumber string) (*models.Account, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var account models.Account

	query := `SELECT * FROM accounts WHERE account_number = $1 AND deleted_at IS NULL`

	err := repo.db.GetContext(ctx, &account, query, accountNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &account, true, err
}

func (repo *AccountRepositoryImpl) HasActiveByUserId(userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var exists bool

	query := `
		SELECT EXISTS(
			SELECT 1 FROM accounts
			WHERE user_id = $1 AND status = $2 AND deleted_at IS NULL
		)`

	err := repo.db.GetContext(ctx, &exists, query, userID, AccountActiveStatus)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// Credit adds to the balance under a row lock. Two concurrent posts against
// the same account serialize on the lock, so neither can write from a stale
// read.
func (repo *AccountRepositoryImpl) Credit(accountID string, amount decimal.Decimal) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer tx.Rollback()

	var account models.Account

	query := `
		SELECT status FROM accounts WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`

	err = tx.GetContext(ctx, &account, query, accountID)
	if err != nil {
		return false, err
	}

	if account.Status != AccountActiveStatus {
		return false, ErrAccountNotActive
	}

	query = `
		UPDATE accounts
		SET balance = balance + $1, available_balance = available_balance + $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL`

	_, err = tx.ExecContext(ctx, query, amount, accountID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// Debit subtracts from the balance under a row lock. Asset accounts
// (checking, savings) may never go below zero; the guard is re-checked while
// the row is locked so concurrent debits cannot both pass it. Debt accounts
// carry an owed amount and are allowed to go negative.
func (repo *AccountRepositoryImpl) Debit(accountID string, amount decimal.Decimal) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer tx.Rollback()

	var account models.Account

	query := `
		SELECT balance, account_type, status FROM accounts WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`

	err = tx.GetContext(ctx, &account, query, accountID)
	if err != nil {
		return false, err
	}

	if account.Status != AccountActiveStatus {
		return false, ErrAccountNotActive
	}

	if account.IsAssetType() && account.Balance.LessThan(amount) {
		return false, nil
	}

	query = `
		UPDATE accounts
		SET balance = balance - $1, available_balance = available_balance - $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL`

	_, err = tx.ExecContext(ctx, query, amount, accountID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// LinkJointHolder attaches the partner and flags the account so the transfer
// boundary can refuse movements between the two holders.
func (repo *AccountRepositoryImpl) LinkJointHolder(accountID, holderUserID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE accounts
		SET joint_holder_id = $1, joint_restricted = true, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL`

	_, err := repo.db.ExecContext(ctx, query, holderUserID, accountID)
	return err
}

// MarkJointRestricted flags the account before the partner has a user
// record of their own; the holder link lands when they register.
func (repo *AccountRepositoryImpl) MarkJointRestricted(accountID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE accounts SET joint_restricted = true, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	_, err := repo.db.ExecContext(ctx, query, accountID)
	return err
}

func (repo *AccountRepositoryImpl) Close(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `UPDATE accounts SET status = $1, updated_at = now() WHERE id = $2`

	_, err := repo.db.ExecContext(ctx, query, AccountClosedStatus, id)
	return err
}
