package models

import (
	"database/sql"
	"time"
)

// AccountApplication is the onboarding application a user submits at signup.
// The secret key is generated server-side, delivered by email, and must be
// echoed back before the application can move forward.
type AccountApplication struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	Email           string         `db:"email"`
	FullName        string         `db:"full_name"`
	AccountType     string         `db:"account_type"`
	Status          string         `db:"status"`
	QRCodeSecret    string         `db:"qr_code_secret"`
	QRCodeVerified  bool           `db:"qr_code_verified"`
	DocumentURL     sql.NullString `db:"document_url"`
	DecidedBy       sql.NullString `db:"decided_by"`
	RejectionReason sql.NullString `db:"rejection_reason"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       sql.NullTime   `db:"updated_at"`
}
