// Package ledger is the only code path allowed to change an account
// balance. Everything that moves money (customer transfers, admin top-ups,
// the settlement sweep, admin approval of held transactions) funnels into
// the Poster here.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidDirection    = errors.New("direction must be credit or debit")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotActive    = errors.New("account is not active")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionSettled is returned when an approval or rejection
	// targets a transaction already in a terminal status. It is what makes
	// double-clicked admin buttons and the sweep racing an admin harmless.
	ErrTransactionSettled = errors.New("transaction has already been settled")
)

// Kafka topics the ledger publishes on.
const (
	// NotificationTopic carries best-effort user notifications. Nothing on
	// the financial path ever waits on this topic.
	NotificationTopic = "notification.dispatch"

	// TransactionCompletedTopic announces settled transactions so
	// interested consumers (joint activation, statements) can react.
	TransactionCompletedTopic = "transaction.completed"
)

// NotificationEvent is queued against a user id, or against a bare email
// address for recipients who have no account yet.
type NotificationEvent struct {
	UserID  string `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// CompletedEvent describes a transaction whose balance effect has landed.
type CompletedEvent struct {
	TransactionID   string          `json:"transaction_id"`
	AccountID       string          `json:"account_id"`
	UserID          string          `json:"user_id"`
	ReferenceNumber string          `json:"reference_number"`
	Amount          decimal.Decimal `json:"amount"`
	Direction       string          `json:"direction"`
}
