package models

import (
	"database/sql"
	"time"
)

// Notification rows are written by the notification worker when it drains the
// dispatch topic. Either UserID or Email is set: partners on a joint request
// may not have an account yet, so their notifications queue against the
// address instead.
type Notification struct {
	ID        string         `db:"id"`
	UserID    sql.NullString `db:"user_id"`
	Email     sql.NullString `db:"email"`
	Title     string         `db:"title"`
	Message   string         `db:"message"`
	Kind      string         `db:"kind"`
	CreatedAt time.Time      `db:"created_at"`
}
