package repository

import (
	"context"
	"database/sql"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/jmoiron/sqlx"
)

const (
	NotificationKindDeposit     = "deposit"
	NotificationKindWithdrawal  = "withdrawal"
	NotificationKindApplication = "application"
	NotificationKindJoint       = "joint_request"
)

type NotificationRepository interface {
	Insert(notification *models.Notification) (string, error)
	ListByUser(userID string, limit, offset int) ([]models.Notification, error)
}

type NotificationRepositoryImpl struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &NotificationRepositoryImpl{db: db}
}

func (repo *NotificationRepositoryImpl) Insert(notification *models.Notification) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO notifications (user_id, email, title, message, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := repo.db.GetContext(ctx, &id, query,
		notification.UserID,
		notification.Email,
		notification.Title,
		notification.Message,
		notification.Kind,
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (repo *NotificationRepositoryImpl) ListByUser(userID string, limit, offset int) ([]models.Notification, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var notifications []models.Notification

	query := `
		SELECT * FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := repo.db.SelectContext(ctx, &notifications, query, userID, limit, offset)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return notifications, err
}
