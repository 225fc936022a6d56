package models

import "time"

// AuditLog is an immutable record of an operator action: approvals,
// rejections, repairs, password resets. Rows are only ever inserted.
type AuditLog struct {
	ID         string    `db:"id"`
	ActorID    string    `db:"actor_id"`
	ActionType string    `db:"action_type"`
	TargetID   string    `db:"target_id"`
	Details    string    `db:"details"`
	CreatedAt  time.Time `db:"created_at"`
}
