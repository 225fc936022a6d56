// Package joint manages adding a second, legally-equal holder to an
// existing account. Activation is gated on two conditions that are tracked
// independently and may land in either order: an admin approves the
// request, and a qualifying external deposit posts to the account.
package joint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cradoe/lumenbank/internal/ledger"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/stream"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountNotActive   = errors.New("account is not active")
	ErrNotAccountOwner    = errors.New("only the account owner can request a joint holder")
	ErrOutstandingRequest = errors.New("account already has an outstanding joint request")
	ErrAlreadyJoint       = errors.New("account already has a joint holder")
	ErrRequestNotFound    = errors.New("joint request not found")
	ErrRequestSettled     = errors.New("joint request has already been decided")
)

// requiredDepositPercent fixes the deposit requirement at 1% of the account
// balance, computed once at submission and frozen on the request.
var requiredDepositPercent = decimal.NewFromFloat(0.01)

type Activator struct {
	Accounts     repository.AccountRepository
	Requests     repository.JointRequestRepository
	Transactions repository.TransactionRepository
	Users        repository.UserRepository
	Stream       stream.Producer
	Logger       *slog.Logger
}

func NewActivator(activator *Activator) *Activator {
	return activator
}

type SubmitInput struct {
	AccountID          string
	RequesterUserID    string
	PartnerFirstName   string
	PartnerLastName    string
	PartnerEmail       string
	PartnerPhoneNumber string
	DocumentURL        string
}

// Submit files the invitation after the form and review stages. The deposit
// requirement is computed from the balance as it stands right now; later
// balance changes never move it.
func (a *Activator) Submit(input *SubmitInput) (*models.JointAccountRequest, error) {
	account, found, err := a.Accounts.GetOne(input.AccountID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAccountNotFound
	}
	if account.Status != repository.AccountActiveStatus {
		return nil, ErrAccountNotActive
	}
	if account.UserID != input.RequesterUserID {
		return nil, ErrNotAccountOwner
	}
	if account.JointHolderID.Valid {
		return nil, ErrAlreadyJoint
	}

	_, outstanding, err := a.Requests.GetPendingByAccount(account.ID)
	if err != nil {
		return nil, err
	}
	if outstanding {
		return nil, ErrOutstandingRequest
	}

	request := &models.JointAccountRequest{
		AccountID:          account.ID,
		RequesterUserID:    input.RequesterUserID,
		PartnerFirstName:   input.PartnerFirstName,
		PartnerLastName:    input.PartnerLastName,
		PartnerEmail:       input.PartnerEmail,
		PartnerPhoneNumber: input.PartnerPhoneNumber,
		DepositAmount:      account.Balance.Mul(requiredDepositPercent).Round(2),
	}
	if input.DocumentURL != "" {
		request.DocumentURL = sql.NullString{String: input.DocumentURL, Valid: true}
	}

	id, err := a.Requests.Insert(request)
	if err != nil {
		return nil, err
	}
	request.ID = id
	request.Status = repository.JointRequestStatusPending

	a.notifyBoth(request, "Joint account request submitted",
		fmt.Sprintf("A joint holder request is awaiting review. A deposit of %s must be received on the account before activation.",
			request.DepositAmount.StringFixed(2)))

	return request, nil
}

// Approve records the admin side of the activation condition. If the
// deposit already landed, the request activates now; otherwise it waits for
// RecordDeposit to observe one.
func (a *Activator) Approve(requestID string) error {
	request, found, err := a.Requests.GetOne(requestID)
	if err != nil {
		return err
	}
	if !found {
		return ErrRequestNotFound
	}
	if request.Status != repository.JointRequestStatusPending {
		return ErrRequestSettled
	}

	if err := a.Requests.MarkAdminApproved(requestID); err != nil {
		return err
	}
	request.AdminApproved = true

	if !request.DepositReceived {
		met, err := a.depositMet(request)
		if err != nil {
			return err
		}
		if met {
			if err := a.Requests.MarkDepositReceived(requestID); err != nil {
				return err
			}
			request.DepositReceived = true
		}
	}

	return a.tryActivate(request)
}

// Reject is terminal. A later deposit on the account has no effect on a
// rejected request.
func (a *Activator) Reject(requestID string) error {
	request, found, err := a.Requests.GetOne(requestID)
	if err != nil {
		return err
	}
	if !found {
		return ErrRequestNotFound
	}

	ok, err := a.Requests.SetStatus(requestID, repository.JointRequestStatusRejected)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestSettled
	}

	a.notifyBoth(request, "Joint account request declined",
		"The joint holder request on the account was not approved.")

	return nil
}

// RecordDeposit re-evaluates the outstanding request on an account after a
// credit settles. The worker draining completed-transaction events calls
// this for every credit.
func (a *Activator) RecordDeposit(accountID string) error {
	request, found, err := a.Requests.GetPendingByAccount(accountID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if !request.DepositReceived {
		met, err := a.depositMet(request)
		if err != nil {
			return err
		}
		if !met {
			return nil
		}

		if err := a.Requests.MarkDepositReceived(request.ID); err != nil {
			return err
		}
		request.DepositReceived = true
	}

	return a.tryActivate(request)
}

// depositMet checks whether external credits since submission cover the
// frozen requirement.
func (a *Activator) depositMet(request *models.JointAccountRequest) (bool, error) {
	total, err := a.Transactions.SumCompletedCreditsSince(request.AccountID, request.CreatedAt)
	if err != nil {
		return false, err
	}

	return total.GreaterThanOrEqual(request.DepositAmount), nil
}

// tryActivate flips the request to approved only when both conditions hold.
// The account flags land before the status flip: an approved request always
// has its account linked or restricted, and a failure before the flip leaves
// the request pending so the next admin decision or deposit event retries.
// The pending precondition on SetStatus means racing callers (an admin
// decision and a deposit event) activate at most once, and the account
// writes are idempotent so the loser's writes are harmless.
func (a *Activator) tryActivate(request *models.JointAccountRequest) error {
	if !request.AdminApproved || !request.DepositReceived {
		return nil
	}

	current, found, err := a.Requests.GetOne(request.ID)
	if err != nil {
		return err
	}
	if !found || current.Status != repository.JointRequestStatusPending {
		return nil
	}

	// Joint holders are barred from transferring to each other; the
	// restriction flag is what the transfer boundary enforces that with.
	partner, found, err := a.Users.GetByEmail(request.PartnerEmail)
	if err != nil {
		return err
	}
	if found {
		err = a.Accounts.LinkJointHolder(request.AccountID, partner.ID)
	} else {
		err = a.Accounts.MarkJointRestricted(request.AccountID)
	}
	if err != nil {
		return err
	}

	ok, err := a.Requests.SetStatus(request.ID, repository.JointRequestStatusApproved)
	if err != nil {
		return err
	}
	if !ok {
		// someone else already settled it
		return nil
	}

	a.notifyBoth(request, "Joint account activated",
		"The joint holder request has been approved and the deposit received. The account is now shared.")

	return nil
}

// notifyBoth queues a notification for the primary holder by user id and
// for the partner by email, since the partner may not have an account yet.
func (a *Activator) notifyBoth(request *models.JointAccountRequest, title, message string) {
	events := []*ledger.NotificationEvent{
		{
			UserID:  request.RequesterUserID,
			Title:   title,
			Message: message,
			Kind:    repository.NotificationKindJoint,
		},
		{
			Email:   request.PartnerEmail,
			Title:   title,
			Message: message,
			Kind:    repository.NotificationKindJoint,
		},
	}

	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			a.Logger.Error("marshalling joint notification", "error", err)
			continue
		}
		if err := a.Stream.ProduceMessage(ledger.NotificationTopic, string(payload)); err != nil {
			a.Logger.Error("producing joint notification", "request_id", request.ID, "error", err)
		}
	}
}
