package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// define possible transaction status
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

type TransactionRepository interface {
	Insert(transaction *models.Transaction) (*models.Transaction, error)
	GetOne(id string) (*models.Transaction, bool, error)
	FindByReference(referenceNumber string) (*models.Transaction, bool, error)
	ListByAccount(accountID string, limit, offset int) ([]models.Transaction, error)
	ListByStatus(status string, limit, offset int) ([]models.Transaction, error)
	ListDueForAutoComplete(now time.Time, limit int) ([]models.Transaction, error)
	Complete(id string) (*models.Transaction, bool, error)
	Fail(id string) (bool, error)
	SumCompletedCreditsSince(accountID string, since time.Time) (decimal.Decimal, error)
}

type TransactionRepositoryImpl struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &TransactionRepositoryImpl{db: db}
}

func (repo *TransactionRepositoryImpl) Insert(transaction *models.Transaction) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans models.Transaction

	query := `
		INSERT INTO transactions (user_id, account_id, reference_number, amount, direction, status, description, auto_complete_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`

	err := repo.db.GetContext(ctx, &trans, query,
		transaction.UserID,
		transaction.AccountID,
		transaction.ReferenceNumber,
		transaction.Amount,
		transaction.Direction,
		transaction.Status,
		transaction.Description,
		transaction.AutoCompleteAt,
	)
	if err != nil {
		return nil, err
	}

	return &trans, nil
}

func (repo *TransactionRepositoryImpl) GetOne(id string) (*models.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans models.Transaction

	query := `SELECT * FROM transactions WHERE id = $1`

	err := repo.db.GetContext(ctx, &trans, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &trans, true, err
}

func (repo *TransactionRepositoryImpl) FindByReference(referenceNumber string) (*models.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var trans models.Transaction

	query := `SELECT * FROM transactions WHERE reference_number = $1`

	err := repo.db.GetContext(ctx, &trans, query, referenceNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	return &trans, true, err
}

func (repo *TransactionRepositoryImpl) ListByAccount(accountID string, limit, offset int) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var transactions []models.Transaction

	query := `
		SELECT * FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := repo.db.SelectContext(ctx, &transactions, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

func (repo *TransactionRepositoryImpl) ListByStatus(status string, limit, offset int) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var transactions []models.Transaction

	query := `
		SELECT * FROM transactions
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`

	err := repo.db.SelectContext(ctx, &transactions, query, status, limit, offset)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

// ListDueForAutoComplete feeds the settlement sweep. It only returns pending
// rows whose delay has elapsed; the sweep and a concurrent admin click on the
// same row are both funneled through Complete, which lets exactly one of
// them win.
func (repo *TransactionRepositoryImpl) ListDueForAutoComplete(now time.Time, limit int) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var transactions []models.Transaction

	query := `
		SELECT * FROM transactions
		WHERE status = $1 AND auto_complete_at IS NOT NULL AND auto_complete_at <= $2
		ORDER BY auto_complete_at
		LIMIT $3`

	err := repo.db.SelectContext(ctx, &transactions, query, TransactionStatusPending, now, limit)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

// Complete settles a pending transaction and applies its balance effect in a
// single database transaction. The status precondition and the account row
// lock together give the two guarantees settlement needs: the effect lands
// exactly once, exactly when the row moves to completed, and no concurrent
// settle of the same account writes from a stale balance.
//
// Returns ErrAlreadySettled when the row is in a terminal status,
// ErrAccountNotActive when the account cannot receive postings, and
// ErrInsufficientFunds when the debit guard fails; in each case the
// transaction row is left untouched.
func (repo *TransactionRepositoryImpl) Complete(id string) (*models.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}

	defer tx.Rollback()

	var trans models.Transaction

	query := `SELECT * FROM transactions WHERE id = $1 FOR UPDATE`

	err = tx.GetContext(ctx, &trans, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if trans.Status != TransactionStatusPending {
		return &trans, true, ErrAlreadySettled
	}

	var account models.Account

	query = `SELECT balance, account_type, status FROM accounts WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	err = tx.GetContext(ctx, &account, query, trans.AccountID)
	if err != nil {
		return nil, false, err
	}

	if account.Status != AccountActiveStatus {
		return &trans, true, ErrAccountNotActive
	}

	delta := trans.SignedAmount()

	if account.IsAssetType() && account.Balance.Add(delta).IsNegative() {
		return &trans, true, ErrInsufficientFunds
	}

	query = `
		UPDATE accounts
		SET balance = balance + $1, available_balance = available_balance + $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL`

	_, err = tx.ExecContext(ctx, query, delta, trans.AccountID)
	if err != nil {
		return nil, false, err
	}

	query = `UPDATE transactions SET status = $1, updated_at = now() WHERE id = $2`

	_, err = tx.ExecContext(ctx, query, TransactionStatusCompleted, id)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	trans.Status = TransactionStatusCompleted
	return &trans, true, nil
}

// Fail marks a pending transaction failed with no balance effect. The status
// precondition keeps it idempotent against double clicks and against racing
// the auto-complete sweep.
func (repo *TransactionRepositoryImpl) Fail(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE transactions SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`

	result, err := repo.db.ExecContext(ctx, query, TransactionStatusFailed, id, TransactionStatusPending)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// SumCompletedCreditsSince totals the external money that has landed on an
// account since a point in time. Joint activation uses it to decide whether
// the frozen deposit requirement has been met.
func (repo *TransactionRepositoryImpl) SumCompletedCreditsSince(accountID string, since time.Time) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var total decimal.Decimal

	query := `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND direction = $2 AND status = $3 AND created_at >= $4`

	err := repo.db.GetContext(ctx, &total, query, accountID, models.TransactionDirectionCredit, TransactionStatusCompleted, since)
	if err != nil {
		return decimal.Zero, err
	}

	return total, nil
}
