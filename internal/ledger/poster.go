package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/stream"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Poster applies transactions to accounts. Per-account serialization is the
// repository's job (row locks); the Poster owns validation, the
// immediate-versus-deferred split, and the notification fanout.
type Poster struct {
	Accounts     repository.AccountRepository
	Transactions repository.TransactionRepository
	Stream       stream.Producer
	Logger       *slog.Logger

	// AutoCompleteDelay is how long a deferred posting waits before the
	// sweep is allowed to settle it.
	AutoCompleteDelay time.Duration
}

func NewPoster(poster *Poster) *Poster {
	if poster.AutoCompleteDelay == 0 {
		poster.AutoCompleteDelay = 30 * time.Minute
	}
	return poster
}

type PostInput struct {
	AccountID       string
	Amount          decimal.Decimal
	Direction       string
	Immediate       bool
	ReferenceNumber string
	Description     string
}

// Post validates and records a single transaction against one account.
//
// Immediate posts mutate the balance and create the row already completed;
// deferred posts create a pending row with an auto-complete deadline and
// touch no money until Approve runs. A rejected post creates no transaction
// row at all.
func (p *Poster) Post(input *PostInput) (*models.Transaction, error) {
	if !input.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if input.Direction != models.TransactionDirectionCredit && input.Direction != models.TransactionDirectionDebit {
		return nil, ErrInvalidDirection
	}

	account, found, err := p.Accounts.GetOne(input.AccountID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAccountNotFound
	}
	if account.Status != repository.AccountActiveStatus {
		return nil, ErrAccountNotActive
	}

	reference := input.ReferenceNumber
	if reference == "" {
		reference = uuid.NewString()
	}

	trans := &models.Transaction{
		UserID:          account.UserID,
		AccountID:       account.ID,
		ReferenceNumber: reference,
		Amount:          input.Amount,
		Direction:       input.Direction,
		Status:          repository.TransactionStatusPending,
	}
	if input.Description != "" {
		trans.Description = sql.NullString{String: input.Description, Valid: true}
	}

	if !input.Immediate {
		// A debit the current balance cannot cover is rejected up front
		// rather than parked as a pending row that a sweep would only fail
		// later. The guard at settlement still re-checks against the balance
		// at that moment.
		if input.Direction == models.TransactionDirectionDebit &&
			account.IsAssetType() && input.Amount.GreaterThan(account.Balance) {
			return nil, ErrInsufficientFunds
		}

		trans.AutoCompleteAt = sql.NullTime{Time: time.Now().Add(p.AutoCompleteDelay), Valid: true}

		created, err := p.Transactions.Insert(trans)
		if err != nil {
			return nil, err
		}
		return created, nil
	}

	// Apply the balance effect first: if the guard rejects the debit we
	// want no transaction row left behind.
	var ok bool
	if input.Direction == models.TransactionDirectionDebit {
		ok, err = p.Accounts.Debit(account.ID, input.Amount)
	} else {
		ok, err = p.Accounts.Credit(account.ID, input.Amount)
	}
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotActive) {
			return nil, ErrAccountNotActive
		}
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientFunds
	}

	trans.Status = repository.TransactionStatusCompleted

	created, err := p.Transactions.Insert(trans)
	if err != nil {
		// The balance moved but the row insert failed. Surface it loudly:
		// this is exactly the divergence the consistency scan reports.
		p.Logger.Error("balance applied but transaction row not recorded",
			"account_id", account.ID, "reference", reference, "error", err)
		return nil, err
	}

	p.announceSettled(created)

	return created, nil
}

// announceSettled emits the completed event and the user notification for a
// settled transaction. Emission is best effort: a dead broker must never
// fail or roll back a financial mutation that has already landed.
func (p *Poster) announceSettled(trans *models.Transaction) {
	event := &CompletedEvent{
		TransactionID:   trans.ID,
		AccountID:       trans.AccountID,
		UserID:          trans.UserID,
		ReferenceNumber: trans.ReferenceNumber,
		Amount:          trans.Amount,
		Direction:       trans.Direction,
	}
	p.produce(TransactionCompletedTopic, event)

	notification := &NotificationEvent{
		UserID: trans.UserID,
		Kind:   repository.NotificationKindDeposit,
		Title:  "Credit alert",
		Message: fmt.Sprintf("Your account was credited with %s. Reference: %s",
			trans.Amount.StringFixed(2), trans.ReferenceNumber),
	}
	if trans.Direction == models.TransactionDirectionDebit {
		notification.Kind = repository.NotificationKindWithdrawal
		notification.Title = "Debit alert"
		notification.Message = fmt.Sprintf("A debit of %s was posted to your account. Reference: %s",
			trans.Amount.StringFixed(2), trans.ReferenceNumber)
	}
	p.produce(NotificationTopic, notification)
}

func (p *Poster) produce(topic string, payload any) {
	message, err := json.Marshal(payload)
	if err != nil {
		p.Logger.Error("marshalling event", "topic", topic, "error", err)
		return
	}

	if err := p.Stream.ProduceMessage(topic, string(message)); err != nil {
		p.Logger.Error("producing event", "topic", topic, "error", err)
	}
}
