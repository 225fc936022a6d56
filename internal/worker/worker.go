// Package worker holds the long-running background loops: the Kafka
// consumers draining the ledger's event topics and the settlement sweep.
// Each loop is started as its own goroutine from main and runs for the
// lifetime of the process.
package worker

import (
	"context"
	"log/slog"

	"github.com/cradoe/lumenbank/internal/joint"
	"github.com/cradoe/lumenbank/internal/ledger"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/smtp"
	"github.com/cradoe/lumenbank/internal/stream"
)

type Worker struct {
	KafkaStream *stream.KafkaStream
	DB          repository.Database
	Poster      *ledger.Poster
	Activator   *joint.Activator
	Mailer      smtp.MailerInterface
	Logger      *slog.Logger
	Ctx         context.Context
}

const (
	// notificationGroupID consumes the notification dispatch topic and
	// persists plus delivers user notifications.
	notificationGroupID = "notification-dispatch-group"

	// jointDepositGroupID consumes settled transactions so joint account
	// requests can react to incoming deposits.
	jointDepositGroupID = "joint-deposit-group"
)

func New(wk *Worker) *Worker {
	return wk
}
