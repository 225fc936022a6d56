package models

import (
	"database/sql"
	"time"
)

// User carries both the identity record and the verification profile.
// The verification flags used to live in a separate profile table; keeping
// them on the user row gives the flags a single home and a single write path.
type User struct {
	ID             string         `db:"id"`
	FirstName      string         `db:"first_name"`
	LastName       string         `db:"last_name"`
	PhoneNumber    string         `db:"phone_number"`
	Email          string         `db:"email"`
	Role           string         `db:"role"`
	Status         string         `db:"status"`
	Pin            sql.NullInt32  `db:"pin"`
	EmailVerified  bool           `db:"email_verified"`
	QRVerified     bool           `db:"qr_verified"`
	CanTransact    bool           `db:"can_transact"`
	Image          sql.NullString `db:"image"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
	DeletedAt      sql.NullTime   `db:"deleted_at"`
	HashedPassword string         `db:"hashed_password"`
}
