package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	AccountID       string          `db:"account_id"`
	ReferenceNumber string          `db:"reference_number"`
	Amount          decimal.Decimal `db:"amount"`
	Direction       string          `db:"direction"`
	Status          string          `db:"status"`
	Description     sql.NullString  `db:"description"`
	AutoCompleteAt  sql.NullTime    `db:"auto_complete_at"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       sql.NullTime    `db:"updated_at"`
}

const (
	TransactionDirectionCredit = "credit"
	TransactionDirectionDebit  = "debit"
)

// SignedAmount is the adjustment the transaction applies to the account
// balance when it completes: positive for credits, negative for debits.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Direction == TransactionDirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
