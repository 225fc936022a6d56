package ledger

import (
	"errors"
	"fmt"

	"github.com/cradoe/lumenbank/internal/repository"
)

// Approve settles a pending transaction, applying its balance effect. The
// settlement itself happens inside one repository transaction with a status
// precondition, so calling Approve twice, or racing the auto-complete
// sweep, applies the money exactly once; the loser gets
// ErrTransactionSettled.
//
// A debit that no longer fits the balance is marked failed rather than left
// pending, so it cannot be retried into success later by the sweep.
func (p *Poster) Approve(transactionID string) error {
	trans, found, err := p.Transactions.GetOne(transactionID)
	if err != nil {
		return err
	}
	if !found {
		return ErrTransactionNotFound
	}
	if trans.Status != repository.TransactionStatusPending {
		return ErrTransactionSettled
	}

	settled, found, err := p.Transactions.Complete(transactionID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadySettled):
			return ErrTransactionSettled

		case errors.Is(err, repository.ErrInsufficientFunds):
			if _, failErr := p.Transactions.Fail(transactionID); failErr != nil {
				return failErr
			}
			p.announceFailed(trans.UserID, trans.ReferenceNumber)
			return ErrInsufficientFunds

		case errors.Is(err, repository.ErrAccountNotActive):
			return ErrAccountNotActive
		}
		return err
	}
	if !found {
		return ErrTransactionNotFound
	}

	p.announceSettled(settled)

	return nil
}

// Reject marks a pending transaction failed with no balance effect.
func (p *Poster) Reject(transactionID string) error {
	_, found, err := p.Transactions.GetOne(transactionID)
	if err != nil {
		return err
	}
	if !found {
		return ErrTransactionNotFound
	}

	ok, err := p.Transactions.Fail(transactionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTransactionSettled
	}

	trans, found, err := p.Transactions.GetOne(transactionID)
	if err == nil && found {
		p.announceFailed(trans.UserID, trans.ReferenceNumber)
	}

	return nil
}

func (p *Poster) announceFailed(userID, referenceNumber string) {
	notification := &NotificationEvent{
		UserID:  userID,
		Kind:    repository.NotificationKindWithdrawal,
		Title:   "Transaction declined",
		Message: fmt.Sprintf("Your transaction %s could not be completed.", referenceNumber),
	}
	p.produce(NotificationTopic, notification)
}

// BatchOutcome reports one item of a bulk decision. Bulk approval never
// stops on a failed item and never hides one: every id passed in comes back
// with its own result.
type BatchOutcome struct {
	TransactionID string `json:"transaction_id"`
	Succeeded     bool   `json:"succeeded"`
	Error         string `json:"error,omitempty"`
}

func (p *Poster) ApproveBatch(transactionIDs []string) []BatchOutcome {
	return p.batch(transactionIDs, p.Approve)
}

func (p *Poster) RejectBatch(transactionIDs []string) []BatchOutcome {
	return p.batch(transactionIDs, p.Reject)
}

func (p *Poster) batch(transactionIDs []string, decide func(string) error) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(transactionIDs))

	for i, id := range transactionIDs {
		outcome := BatchOutcome{TransactionID: id, Succeeded: true}

		if err := decide(id); err != nil {
			outcome.Succeeded = false
			outcome.Error = err.Error()
		}

		outcomes[i] = outcome
	}

	return outcomes
}
