package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID               string          `db:"id"`
	UserID           string          `db:"user_id"`
	AccountType      string          `db:"account_type"`
	AccountNumber    string          `db:"account_number"`
	Status           string          `db:"status"`
	Balance          decimal.Decimal `db:"balance"`
	AvailableBalance decimal.Decimal `db:"available_balance"`
	JointHolderID    sql.NullString  `db:"joint_holder_id"`
	JointRestricted  bool            `db:"joint_restricted"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        sql.NullTime    `db:"updated_at"`
	DeletedAt        sql.NullTime    `db:"deleted_at"`
}

// IsAssetType reports whether the balance represents funds held rather than
// funds owed. Asset accounts may never be driven below zero; debt accounts
// (credit card, loan) go negative as a matter of course.
func (a *Account) IsAssetType() bool {
	return a.AccountType == AccountTypeChecking || a.AccountType == AccountTypeSavings
}

const (
	AccountTypeChecking   = "checking"
	AccountTypeSavings    = "savings"
	AccountTypeCreditCard = "credit_card"
	AccountTypeLoan       = "loan"
)
