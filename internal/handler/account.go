package handler

import (
	"net/http"
	"time"

	"github.com/cradoe/lumenbank/internal/context"
	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/response"
)

type AccountHandler struct {
	AccountRepo     repository.AccountRepository
	TransactionRepo repository.TransactionRepository
	ErrHandler      *errHandler.ErrorHandler
}

func NewAccountHandler(handler *AccountHandler) *AccountHandler {
	return handler
}

type AccountResponseData struct {
	ID               string `json:"id"`
	AccountNumber    string `json:"account_number"`
	BankName         string `json:"bank_name"`
	AccountType      string `json:"account_type"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"available_balance"`
	Status           string `json:"status"`
	JointRestricted  bool   `json:"joint_restricted"`
	CreatedAt        string `json:"created_at"`
}

func accountResponseData(account *models.Account) *AccountResponseData {
	return &AccountResponseData{
		ID:               account.ID,
		AccountNumber:    account.AccountNumber,
		BankName:         BankName,
		AccountType:      account.AccountType,
		Balance:          account.Balance.StringFixed(2),
		AvailableBalance: account.AvailableBalance.StringFixed(2),
		Status:           account.Status,
		JointRestricted:  account.JointRestricted,
		CreatedAt:        account.CreatedAt.Format(time.RFC3339),
	}
}

// isHolder reports whether the user is the owner or the joint holder.
func isHolder(account *models.Account, userID string) bool {
	if account.UserID == userID {
		return true
	}
	return account.JointHolderID.Valid && account.JointHolderID.String == userID
}

func (h *AccountHandler) HandleUserAccounts(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	accounts, found, err := h.AccountRepo.GetAllByUserId(user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if !found {
		message := "No account found"
		err = response.JSONOkResponse(w, []AccountResponseData{}, message, nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	data := make([]*AccountResponseData, len(accounts))
	for i := range accounts {
		data[i] = accountResponseData(&accounts[i])
	}

	message := "Accounts retrieved successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AccountHandler) HandleAccountDetails(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	accountID := r.PathValue("id")

	account, found, err := h.AccountRepo.GetOne(accountID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	if !isHolder(account, user.ID) {
		h.ErrHandler.Forbidden(w, r)
		return
	}

	message := "Account details fetched successfully"
	err = response.JSONOkResponse(w, accountResponseData(account), message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AccountHandler) HandleAccountBalance(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	accountID := r.PathValue("id")

	account, found, err := h.AccountRepo.GetOne(accountID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	if !isHolder(account, user.ID) {
		h.ErrHandler.Forbidden(w, r)
		return
	}

	message := "Balance fetched successfully"
	data := map[string]any{
		"balance":           account.Balance.StringFixed(2),
		"available_balance": account.AvailableBalance.StringFixed(2),
	}
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

type TransactionResponseData struct {
	ID              string `json:"id"`
	ReferenceNumber string `json:"reference_number"`
	Amount          string `json:"amount"`
	Direction       string `json:"direction"`
	Status          string `json:"status"`
	Description     string `json:"description,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func transactionResponseData(trans *models.Transaction) *TransactionResponseData {
	return &TransactionResponseData{
		ID:              trans.ID,
		ReferenceNumber: trans.ReferenceNumber,
		Amount:          trans.Amount.StringFixed(2),
		Direction:       trans.Direction,
		Status:          trans.Status,
		Description:     trans.Description.String,
		CreatedAt:       trans.CreatedAt.Format(time.RFC3339),
	}
}

func (h *AccountHandler) HandleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	accountID := r.PathValue("id")
	queryValues := retrieveUrlQueryValues(r)

	account, found, err := h.AccountRepo.GetOne(accountID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	if !isHolder(account, user.ID) {
		h.ErrHandler.Forbidden(w, r)
		return
	}

	transactions, err := h.TransactionRepo.ListByAccount(accountID, queryValues.Limit, queryValues.Offset)
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
