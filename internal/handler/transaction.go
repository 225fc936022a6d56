package handler

import (
	"errors"
	"net/http"

	"github.com/cradoe/lumenbank/internal/context"
	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/ledger"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/request"
	"github.com/cradoe/lumenbank/internal/response"
	"github.com/cradoe/lumenbank/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrRecipientNotFound        = errors.New("recipient not found")
	ErrAttemptForSameAccount    = errors.New("you can't transfer to the same account")
	ErrInActiveSenderAccount    = errors.New("your account cannot process transactions at this time")
	ErrInActiveRecipientAccount = errors.New("we can't process transfers into the recipient's account")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrJointHolderTransfer      = errors.New("transfers between holders of a joint account are not allowed")
	ErrNoAccountPin             = errors.New("you need to set a PIN for your account")
	ErrInvalidPin               = errors.New("invalid pin")
	ErrDuplicateTransfer        = errors.New("this appears to be a duplicate transaction")
)

type TransactionHandler struct {
	AccountRepo     repository.AccountRepository
	TransactionRepo repository.TransactionRepository
	Poster          *ledger.Poster
	ErrHandler      *errHandler.ErrorHandler
}

func NewTransactionHandler(handler *TransactionHandler) *TransactionHandler {
	return handler
}

type TransferResponseData struct {
	Debit  *TransactionResponseData `json:"debit"`
	Credit *TransactionResponseData `json:"credit"`
}

// HandleTransferMoney moves funds between two accounts as a pair of
// immediate posts: a debit on the sender and a credit on the recipient.
// All the legwork here is validation and boundary rules; the money itself
// only moves inside the poster.
func (h *TransactionHandler) HandleTransferMoney(w http.ResponseWriter, r *http.Request) {
	var input struct {
		AccountID       string              `json:"account_id"`
		AccountNumber   string              `json:"account_number"`
		Amount          decimal.Decimal     `json:"amount"`
		ReferenceNumber string              `json:"reference_number"`
		Description     string              `json:"description"`
		Pin             int                 `json:"pin"`
		Validator       validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	// The PIN is checked before anything else; we do not reveal whether the
	// rest of the form is valid to a caller who cannot authorize a transfer.
	input.Validator.Check(input.Pin > 0, "Pin is required")
	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	sender := context.ContextGetAuthenticatedUser(r)

	if !sender.Pin.Valid {
		input.Validator.AddError(ErrNoAccountPin.Error())
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}
	if int(sender.Pin.Int32) != input.Pin {
		input.Validator.AddError(ErrInvalidPin.Error())
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	input.Validator.Check(input.Amount.IsPositive(), "Amount must be greater than zero")
	input.Validator.Check(validator.NotBlank(input.AccountID), "Sender account is required")
	input.Validator.Check(validator.NotBlank(input.AccountNumber), "Recipient account number is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	// idempotency: re-submitting the same reference returns an error rather
	// than moving the money twice
	if input.ReferenceNumber != "" {
		_, found, err := h.TransactionRepo.FindByReference(input.ReferenceNumber)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
			return
		}
		if found {
			input.Validator.AddError(ErrDuplicateTransfer.Error())
			h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
			return
		}
	}

	senderAccount, found, err := h.AccountRepo.GetOne(input.AccountID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found || !isHolder(senderAccount, sender.ID) {
		h.ErrHandler.NotFound(w, r)
		return
	}

	recipientAccount, found, err := h.AccountRepo.FindByAccountNumber(input.AccountNumber)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.respondUnprocessable(w, r, ErrRecipientNotFound)
		return
	}

	if recipientAccount.ID == senderAccount.ID {
		h.respondUnprocessable(w, r, ErrAttemptForSameAccount)
		return
	}

	if senderAccount.Status != repository.AccountActiveStatus {
		h.respondUnprocessable(w, r, ErrInActiveSenderAccount)
		return
	}
	if recipientAccount.Status != repository.AccountActiveStatus {
		h.respondUnprocessable(w, r, ErrInActiveRecipientAccount)
		return
	}

	// Joint holders may not shuffle money between themselves through the
	// joint account; that would let them manufacture the activation deposit.
	if jointHoldersTransfer(senderAccount, recipientAccount, sender.ID) {
		h.respondUnprocessable(w, r, ErrJointHolderTransfer)
		return
	}

	reference := input.ReferenceNumber
	if reference == "" {
		reference = uuid.NewString()
	}

	debit, err := h.Poster.Post(&ledger.PostInput{
		AccountID:       senderAccount.ID,
		Amount:          input.Amount,
		Direction:       models.TransactionDirectionDebit,
		Immediate:       true,
		ReferenceNumber: reference,
		Description:     input.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			h.respondUnprocessable(w, r, ErrInsufficientBalance)
		case errors.Is(err, ledger.ErrAccountNotActive):
			h.respondUnprocessable(w, r, ErrInActiveSenderAccount)
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	credit, err := h.Poster.Post(&ledger.PostInput{
		AccountID:       recipientAccount.ID,
		Amount:          input.Amount,
		Direction:       models.TransactionDirectionCredit,
		Immediate:       true,
		ReferenceNumber: reference + "-cr",
		Description:     input.Description,
	})
	if err != nil {
		// the debit already settled; put the money back before reporting
		if _, refundErr := h.Poster.Post(&ledger.PostInput{
			AccountID:       senderAccount.ID,
			Amount:          input.Amount,
			Direction:       models.TransactionDirectionCredit,
			Immediate:       true,
			ReferenceNumber: reference + "-rf",
			Description:     "reversal: " + reference,
		}); refundErr != nil {
			h.ErrHandler.ReportServerError(r, refundErr)
		}

		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "Transfer completed successfully"
	data := &TransferResponseData{
		Debit:  transactionResponseData(debit),
		Credit: transactionResponseData(credit),
	}

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *TransactionHandler) HandleTransactionDetails(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	transactionID := r.PathValue("id")

	trans, found, err := h.TransactionRepo.GetOne(transactionID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	if trans.UserID != user.ID {
		h.ErrHandler.Forbidden(w, r)
		return
	}

	message := "Transaction fetched successfully"
	err = response.JSONOkResponse(w, transactionResponseData(trans), message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *TransactionHandler) respondUnprocessable(w http.ResponseWriter, r *http.Request, respErr error) {
	err := response.JSONErrorResponse(w, nil, respErr.Error(), http.StatusUnprocessableEntity, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// jointHoldersTransfer reports whether the transfer would move money
// between the two holders of a restricted joint account, in either
// direction.
func jointHoldersTransfer(senderAccount, recipientAccount *models.Account, senderUserID string) bool {
	coHolders := func(account *models.Account, userA, userB string) bool {
		if !account.JointRestricted || !account.JointHolderID.Valid {
			return false
		}
		owner, holder := account.UserID, account.JointHolderID.String
		return (userA == owner && userB == holder) || (userA == holder && userB == owner)
	}

	recipientOwner := recipientAccount.UserID

	return coHolders(senderAccount, senderUserID, recipientOwner) ||
		coHolders(recipientAccount, senderUserID, recipientOwner)
}
