package handler

import (
	"net/http"
	"time"

	"github.com/cradoe/lumenbank/internal/context"
	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/lifecycle"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/response"
)

type UserHandler struct {
	UserRepo         repository.UserRepository
	ApplicationRepo  repository.ApplicationRepository
	NotificationRepo repository.NotificationRepository
	ErrHandler       *errHandler.ErrorHandler
}

func NewUserHandler(handler *UserHandler) *UserHandler {
	return handler
}

type ProfileResponseData struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	EmailVerified  bool   `json:"email_verified"`
	SecretVerified bool   `json:"secret_verified"`
	CanTransact    bool   `json:"can_transact"`
	LifecycleState string `json:"lifecycle_state"`
}

// HandleProfile returns the caller's verification profile together with the
// derived lifecycle state, so clients never re-derive it from raw flags.
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	application, found, err := h.ApplicationRepo.GetByUserID(user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		application = nil
	}

	data := &ProfileResponseData{
		ID:             user.ID,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Email:          user.Email,
		PhoneNumber:    user.PhoneNumber,
		EmailVerified:  user.EmailVerified,
		SecretVerified: user.QRVerified,
		CanTransact:    user.CanTransact,
		LifecycleState: string(lifecycle.StateOf(user, application)),
	}

	message := "Profile fetched successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

type NotificationResponseData struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

func (h *UserHandler) HandleUserNotifications(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	queryValues := retrieveUrlQueryValues(r)

	notifications, err := h.NotificationRepo.ListByUser(user.ID, queryValues.Limit, queryValues.Offset)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]NotificationResponseData, len(notifications))
	for i, notification := range notifications {
		data[i] = NotificationResponseData{
			ID:        notification.ID,
			Title:     notification.Title,
			Message:   notification.Message,
			Kind:      notification.Kind,
			CreatedAt: notification.CreatedAt.Format(time.RFC3339),
		}
	}

	message := "Notifications retrieved successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
