// Every operator action that touches someone else's records must leave a
// trace. Approvals, rejections, repairs, and password resets all write here;
// rows are never updated or deleted.
package repository

import (
	"context"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/jmoiron/sqlx"
)

const (
	AuditActionApplicationApproved = "application.approved"
	AuditActionApplicationRejected = "application.rejected"
	AuditActionTransactionApproved = "transaction.approved"
	AuditActionTransactionRejected = "transaction.rejected"
	AuditActionJointApproved       = "joint_request.approved"
	AuditActionJointRejected       = "joint_request.rejected"
	AuditActionAdminDeposit        = "account.deposit"
	AuditActionPasswordReset       = "user.password_reset"
	AuditActionRepair              = "consistency.repair"
)

type AuditLogRepository interface {
	Insert(log *models.AuditLog) (*models.AuditLog, error)
	ListRecent(limit, offset int) ([]models.AuditLog, error)
	ListByTarget(targetID string, limit, offset int) ([]models.AuditLog, error)
}

type AuditLogRepositoryImpl struct {
	db *sqlx.DB
}

func NewAuditLogRepository(db *sqlx.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{db: db}
}

func (repo *AuditLogRepositoryImpl) Insert(log *models.AuditLog) (*models.AuditLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var entry models.AuditLog

	query := `
		INSERT INTO audit_logs (actor_id, action_type, target_id, details)
		VALUES ($1, $2, $3, $4)
		RETURNING *`

	err := repo.db.GetContext(ctx, &entry, query,
		log.ActorID,
		log.ActionType,
		log.TargetID,
		log.Details,
	)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (repo *AuditLogRepositoryImpl) ListRecent(limit, offset int) ([]models.AuditLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var entries []models.AuditLog

	query := `
		SELECT * FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	err := repo.db.SelectContext(ctx, &entries, query, limit, offset)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (repo *AuditLogRepositoryImpl) ListByTarget(targetID string, limit, offset int) ([]models.AuditLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var entries []models.AuditLog

	query := `
		SELECT * FROM audit_logs
		WHERE target_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := repo.db.SelectContext(ctx, &entries, query, targetID, limit, offset)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
