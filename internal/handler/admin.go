package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cradoe/lumenbank/internal/audit"
	"github.com/cradoe/lumenbank/internal/context"
	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/helper"
	"github.com/cradoe/lumenbank/internal/joint"
	"github.com/cradoe/lumenbank/internal/ledger"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/request"
	"github.com/cradoe/lumenbank/internal/response"
	"github.com/cradoe/lumenbank/internal/smtp"
	"github.com/cradoe/lumenbank/internal/validator"

	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyDecided = errors.New("this record has already been decided")
	ErrUnknownRepair  = errors.New("unknown repair code")
)

type AdminHandler struct {
	DB         repository.Database
	Poster     *ledger.Poster
	Activator  *joint.Activator
	Auditor    *audit.Auditor
	Mailer     smtp.MailerInterface
	Helper     *helper.HelperRepository
	ErrHandler *errHandler.ErrorHandler
}

func NewAdminHandler(handler *AdminHandler) *AdminHandler {
	return handler
}

func (h *AdminHandler) recordAuditLog(actorID, actionType, targetID, details string) {
	_, err := h.DB.AuditLog().Insert(&models.AuditLog{
		ActorID:    actorID,
		ActionType: actionType,
		TargetID:   targetID,
		Details:    details,
	})
	if err != nil {
		log.Printf("Error recording audit log %s on %s: %v", actionType, targetID, err)
	}
}

type ApplicationResponseData struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	AccountType     string `json:"account_type"`
	Status          string `json:"status"`
	SecretVerified  bool   `json:"secret_verified"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func applicationResponseData(application *models.AccountApplication) *ApplicationResponseData {
	return &ApplicationResponseData{
		ID:              application.ID,
		UserID:          application.UserID,
		FullName:        application.FullName,
		Email:           application.Email,
		AccountType:     application.AccountType,
		Status:          application.Status,
		SecretVerified:  application.QRCodeVerified,
		RejectionReason: application.RejectionReason.String,
		CreatedAt:       application.CreatedAt.Format(time.RFC3339),
	}
}

func (h *AdminHandler) HandleListApplications(w http.ResponseWriter, r *http.Request) {
	queryValues := retrieveUrlQueryValues(r)

	status := queryValues.Status
	if status == "" {
		status = repository.ApplicationStatusPending
	}

	applications, err := h.DB.Application().ListByStatus(status, queryValues.Limit, queryValues.Offset)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]*ApplicationResponseData, len(applications))
	for i := range applications {
		data[i] = applicationResponseData(&applications[i])
	}

	message := "Applications retrieved successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleApproveApplication approves a pending application and enables
// transacting for its owner in the same database transaction. These two
// writes landing together is exactly the invariant the consistency auditor
// checks for, so they are never split.
func (h *AdminHandler) HandleApproveApplication(w http.ResponseWriter, r *http.Request) {
	admin := context.ContextGetAuthenticatedUser(r)
	applicationID := r.PathValue("id")

	application, found, err := h.DB.Application().GetOne(applicationID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ok, err := h.DB.Application().Approve(applicationID, admin.ID, tx)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !ok {
		tx.Rollback()
		err = response.JSONErrorResponse(w, nil, ErrAlreadyDecided.Error(), http.StatusConflict, nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	if err = h.DB.User().EnableTransact(application.UserID, tx); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err = tx.Commit(); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		h.recordAuditLog(admin.ID, repository.AuditActionApplicationApproved, applicationID, "application approved")
		return nil
	})

	h.Helper.BackgroundTask(r, func() error {
		emailData := h.Helper.NewEmailData()
		emailData["Name"] = application.FullName
		emailData["AccountType"] = application.AccountType

		return h.Mailer.Send(application.Email, emailData, "application-approved.tmpl")
	})

	message := "Application approved"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleRejectApplication(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Reason    string              `json:"reason"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Reason), "Rejection reason is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	admin := context.ContextGetAuthenticatedUser(r)
	applicationID := r.PathValue("id")

	application, found, err := h.DB.Application().GetOne(applicationID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	ok, err := h.DB.Application().Reject(applicationID, admin.ID, input.Reason)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !ok {
		err = response.JSONErrorResponse(w, nil, ErrAlreadyDecided.Error(), http.StatusConflict, nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		h.recordAuditLog(admin.ID, repository.AuditActionApplicationRejected, applicationID, input.Reason)
		return nil
	})

	h.Helper.BackgroundTask(r, func() error {
		emailData := h.Helper.NewEmailData()
		emailData["Name"] = application.FullName
		emailData["Reason"] = input.Reason

		return h.Mailer.Send(application.Email, emailData, "application-rejected.tmpl")
	})

	message := "Application rejected"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	queryValues := retrieveUrlQueryValues(r)

	status := queryValues.Status
	if status == "" {
		status = repository.TransactionStatusPending
	}

	transactions, err := h.DB.Transaction().ListByStatus(status, queryValues.Limit, queryValues.Offset)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]*TransactionResponseData, len(transactions))
	for i := range transactions {
		data[i] = transactionResponseData(&transactions[i])
	}

	message := "Transactions retrieved successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// respondDecision maps ledger decision errors onto HTTP statuses. A
// transaction already in a terminal state is a conflict, not a failure;
// double-clicking an approve button must be harmless.
func (h *AdminHandler) respondDecision(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrTransactionNotFound):
		h.ErrHandler.NotFound(w, r)
	case errors.Is(err, ledger.ErrTransactionSettled):
		respErr := response.JSONErrorResponse(w, nil, err.Error(), http.StatusConflict, nil)
		if respErr != nil {
			h.ErrHandler.ServerError(w, r, respErr)
		}
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrAccountNotActive):
		respErr := response.JSONErrorResponse(w, nil, err.Error(), http.StatusUnprocessableEntity, nil)
		if respErr != nil {
			h.ErrHandler.ServerError(w, r, respErr)
		}
	default:
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleApproveTransaction(w http.ResponseWriter, r *http.Request) {
	admin := context.ContextGetAuthenticatedUser(r)
	transactionID := r.PathValue("id")

	if err := h.Poster.Approve(transactionID); err != nil {
		h.respondDecision(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		h.recordAuditLog(admin.ID, repository.AuditActionTransactionApproved, transactionID, "transaction approved")
		return nil
	})

	message := "Transaction approved"
	err := response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleRejectTransaction(w http.ResponseWriter, r *http.Request) {
	admin := context.ContextGetAuthenticatedUser(r)
	transactionID := r.PathValue("id")

	if err := h.Poster.Reject(transactionID); err != nil {
		h.respondDecision(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		h.recordAuditLog(admin.ID, repository.AuditActionTransactionRejected, transactionID, "transaction rejected")
		return nil
	})

	message := "Transaction rejected"
	err := response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleBulkApproveTransactions decides every id independently; one bad id
// never blocks the rest, and each comes back with its own outcome.
func (h *AdminHandler) HandleBulkApproveTransactions(w http.ResponseWriter, r *http.Request) {
	h.handleBulkDecision(w, r, repository.AuditActionTransactionApproved, h.Poster.ApproveBatch)
}

func (h *AdminHandler) HandleBulkRejectTransactions(w http.ResponseWriter, r *http.Request) {
	h.handleBulkDecision(w, r, repository.AuditActionTransactionRejected, h.Poster.RejectBatch)
}

func (h *AdminHandler) handleBulkDecision(w http.ResponseWriter, r *http.Request, actionType string, decide func([]string) []ledger.BatchOutcome) {
	var input struct {
		TransactionIDs []string            `json:"transaction_ids"`
		Validator      validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(len(input.TransactionIDs) > 0, "At least one transaction id is required")
	input.Validator.Check(len(input.TransactionIDs) <= 100, "At most 100 transaction ids per request")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	admin := context.ContextGetAuthenticatedUser(r)

	outcomes := decide(input.TransactionIDs)

	h.Helper.BackgroundTask(r, func() error {
		for _, outcome := range outcomes {
			if outcome.Succeeded {
				h.recordAuditLog(admin.ID, actionType, outcome.TransactionID, "bulk decision")
			}
		}
		return nil
	})

	message := "Bulk decision processed"
	err = response.JSONOkResponse(w, outcomes, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleAdminDeposit tops up an account through the poster. Deferred
// deposits stay pending until an admin approves them or the settlement
// sweep picks them up.
func (h *AdminHandler) HandleAdminDeposit(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Amount      decimal.Decimal     `json:"amount"`
		Immediate   bool                `json:"immediate"`
		Description string              `json:"description"`
		Validator   validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(input.Amount.IsPositive(), "Amount must be greater than zero")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	admin := context.ContextGetAuthenticatedUser(r)
	accountID := r.PathValue("id")

	trans, err := h.Poster.Post(&ledger.PostInput{
		AccountID:   accountID,
		Amount:      input.Amount,
		Direction:   models.TransactionDirectionCredit,
		Immediate:   input.Immediate,
		Description: input.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAccountNotFound):
			h.ErrHandler.NotFound(w, r)
		case errors.Is(err, ledger.ErrAccountNotActive):
			respErr := response.JSONErrorResponse(w, nil, err.Error(), http.StatusUnprocessableEntity, nil)
			if respErr != nil {
				h.ErrHandler.ServerError(w, r, respErr)
			}
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		details := fmt.Sprintf("deposit of %s to account %s", input.Amount.StringFixed(2), accountID)
		h.recordAuditLog(admin.ID, repository.AuditActionAdminDeposit, trans.ID, details)
		return nil
	})

	message := "Deposit posted successfully"
	err = response.JSONOkResponse(w, transactionResponseData(trans), message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleListJointRequests(w http.ResponseWriter, r *http.Request) {
	queryValues := retrieveUrlQueryValues(r)

	status := queryValues.Status
	if status == "" {
		status = repository.JointRequestStatusPending
	}

	requests, err := h.DB.JointRequest().ListByStatus(status, queryValues.Limit, queryValues.Offset)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]*JointRequestResponseData, len(requests))
	for i := range requests {
		data[i] = jointRequestResponseData(&requests[i])
	}

	message := "Joint requests retrieved successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) respondJointDecision(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, joint.ErrRequestNotFound):
		h.ErrHandler.NotFound(w, r)
	case errors.Is(err, joint.ErrRequestSettled):
		respErr := response.JSONErrorResponse(w, nil, ErrAlreadyDecided.Error(), http.StatusConflict, nil)
		if respErr != nil {
			h.ErrHandler.ServerError(w, r, respErr)
		}
	default:
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleApproveJointRequest(w http.ResponseWriter, r *http.Request) {
	admin := context.ContextGetAuthenticatedUser(r)
	requestID := r.PathValue("id")

	if err := h.Activator.Approve(requestID); err != nil {
		h.respondJointDecision(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		h.recordAuditLog(admin.ID, repository.AuditActionJointApproved, requestID, "joint request approved")
		return nil
	})

	message := "Joint request approved"
	err := response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleRejectJointRequest(w http.ResponseWriter, r *http.Request) {
	admin := context.ContextGetAuthenticatedUser(r)
	requestID := r.PathValue("id")

	if err := h.Activator.Reject(requestID); err != nil {
		h.respondJointDecision(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		h.recordAuditLog(admin.ID, repository.AuditActionJointRejected, requestID, "joint request rejected")
		return nil
	})

	message := "Joint request rejected"
	err := response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleAuditFindings runs the consistency scan. With a user_id query
// parameter it scans one user, otherwise the whole user base.
func (h *AdminHandler) HandleAuditFindings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	var findings []audit.Finding
	var err error

	if userID != "" {
		findings, err = h.Auditor.ScanUser(userID)
	} else {
		findings, err = h.Auditor.Scan()
	}

	if err != nil {
		if errors.Is(err, audit.ErrUserNotFound) {
			h.ErrHandler.NotFound(w, r)
			return
		}
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "Scan completed"
	err = response.JSONOkResponse(w, findings, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleAuditRepair applies one named repair to one user. Repairs are
// idempotent; applying one that no longer fits the data changes nothing.
func (h *AdminHandler) HandleAuditRepair(w http.ResponseWriter, r *http.Request) {
	var input struct {
		UserID    string              `json:"user_id"`
		Code      string              `json:"code"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.UserID), "User id is required")
	input.Validator.Check(validator.NotBlank(input.Code), "Repair code is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	admin := context.ContextGetAuthenticatedUser(r)

	switch input.Code {
	case audit.CodeQRWithoutEmail:
		err = h.Auditor.RepairEmailFlag(input.UserID, admin.ID)
	case audit.CodeFlagMismatch, audit.CodeTransactWithoutQR:
		err = h.Auditor.RepairQRFlags(input.UserID, admin.ID)
	case audit.CodeApprovedButBlocked:
		err = h.Auditor.RepairTransactFlag(input.UserID, admin.ID)
	case audit.CodeTransactWhilePending:
		err = h.Auditor.RepairApplicationStatus(input.UserID, admin.ID)
	case audit.CodeMissingApplication:
		err = h.Auditor.RepairMissingApplication(input.UserID, admin.ID)
	case audit.CodeTransactWithoutAccount:
		err = h.Auditor.RepairMissingAccount(input.UserID, admin.ID)
	default:
		input.Validator.AddError(ErrUnknownRepair.Error())
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	if err != nil {
		if errors.Is(err, audit.ErrUserNotFound) {
			h.ErrHandler.NotFound(w, r)
			return
		}
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "Repair applied"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

type AuditLogResponseData struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	ActionType string `json:"action_type"`
	TargetID   string `json:"target_id"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

func (h *AdminHandler) HandleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	queryValues := retrieveUrlQueryValues(r)

	entries, err := h.DB.AuditLog().ListRecent(queryValues.Limit, queryValues.Offset)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]AuditLogResponseData, len(entries))
	for i, entry := range entries {
		data[i] = AuditLogResponseData{
			ID:         entry.ID,
			ActorID:    entry.ActorID,
			ActionType: entry.ActionType,
			TargetID:   entry.TargetID,
			Details:    entry.Details,
			CreatedAt:  entry.CreatedAt.Format(time.RFC3339),
		}
	}

	message := "Audit log retrieved successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
