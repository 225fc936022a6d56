package worker

import (
	"database/sql"
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/lumenbank/internal/ledger"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/stream"
)

// NotificationWorker drains the dispatch topic. Every event becomes a
// notification row; events addressed to a bare email (partners without an
// account yet) are additionally delivered by mail, since they have no inbox
// in the app to read.
func (wk *Worker) NotificationWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: notificationGroupID,
		Topic:   ledger.NotificationTopic,
	})
	if err != nil {
		log.Fatalf("Error creating notification consumer: %v", err)
	}

	for {
		event := consumer.Poll(100) // Poll every 100ms
		switch e := event.(type) {
		case *kafka.Message:
			var notificationEvent ledger.NotificationEvent
			if err := json.Unmarshal(e.Value, &notificationEvent); err != nil {
				wk.Logger.Error("decoding notification event", "error", err, "payload", string(e.Value))
				continue
			}

			wk.dispatchNotification(&notificationEvent)
		case kafka.Error:
			log.Printf("Notification consumer error: %v\n", e)
		default:
		}
	}
}

func (wk *Worker) dispatchNotification(event *ledger.NotificationEvent) {
	notification := &models.Notification{
		Title:   event.Title,
		Message: event.Message,
		Kind:    event.Kind,
	}
	if event.UserID != "" {
		notification.UserID = sql.NullString{String: event.UserID, Valid: true}
	}
	if event.Email != "" {
		notification.Email = sql.NullString{String: event.Email, Valid: true}
	}

	if _, err := wk.DB.Notification().Insert(notification); err != nil {
		wk.Logger.Error("storing notification", "error", err, "title", event.Title)
		return
	}

	if event.UserID == "" && event.Email != "" {
		emailData := map[string]any{
			"Title":   event.Title,
			"Message": event.Message,
		}
		if err := wk.Mailer.Send(event.Email, emailData, "notification.tmpl"); err != nil {
			wk.Logger.Error("mailing notification", "error", err, "email", event.Email)
		}
	}
}
