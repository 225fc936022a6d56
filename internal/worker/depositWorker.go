package worker

import (
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/lumenbank/internal/ledger"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/stream"
)

// JointDepositWorker listens for settled transactions and re-evaluates the
// outstanding joint request on the credited account. This is how the
// deposit side of the activation condition lands regardless of whether the
// admin approval came first.
func (wk *Worker) JointDepositWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: jointDepositGroupID,
		Topic:   ledger.TransactionCompletedTopic,
	})
	if err != nil {
		log.Fatalf("Error creating joint deposit consumer: %v", err)
	}

	for {
		event := consumer.Poll(100) // Poll every 100ms
		switch e := event.(type) {
		case *kafka.Message:
			var completed ledger.CompletedEvent
			if err := json.Unmarshal(e.Value, &completed); err != nil {
				wk.Logger.Error("decoding completed-transaction event", "error", err, "payload", string(e.Value))
				continue
			}

			if completed.Direction != models.TransactionDirectionCredit {
				continue
			}

			if err := wk.Activator.RecordDeposit(completed.AccountID); err != nil {
				wk.Logger.Error("recording joint deposit",
					"account_id", completed.AccountID,
					"transaction_id", completed.TransactionID,
					"error", err)
			}
		case kafka.Error:
			log.Printf("Joint deposit consumer error: %v\n", e)
		default:
		}
	}
}
