package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/cradoe/lumenbank/internal/context"
	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/helper"
	"github.com/cradoe/lumenbank/internal/joint"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/request"
	"github.com/cradoe/lumenbank/internal/response"
	"github.com/cradoe/lumenbank/internal/smtp"
	"github.com/cradoe/lumenbank/internal/validator"
)

type JointHandler struct {
	Activator  *joint.Activator
	Mailer     smtp.MailerInterface
	Helper     *helper.HelperRepository
	ErrHandler *errHandler.ErrorHandler
}

func NewJointHandler(handler *JointHandler) *JointHandler {
	return handler
}

type JointRequestResponseData struct {
	ID              string `json:"id"`
	AccountID       string `json:"account_id"`
	PartnerName     string `json:"partner_name"`
	PartnerEmail    string `json:"partner_email"`
	DepositAmount   string `json:"deposit_amount"`
	DepositReceived bool   `json:"deposit_received"`
	AdminApproved   bool   `json:"admin_approved"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

func jointRequestResponseData(req *models.JointAccountRequest) *JointRequestResponseData {
	return &JointRequestResponseData{
		ID:              req.ID,
		AccountID:       req.AccountID,
		PartnerName:     req.PartnerFirstName + " " + req.PartnerLastName,
		PartnerEmail:    req.PartnerEmail,
		DepositAmount:   req.DepositAmount.StringFixed(2),
		DepositReceived: req.DepositReceived,
		AdminApproved:   req.AdminApproved,
		Status:          req.Status,
		CreatedAt:       req.CreatedAt.Format(time.RFC3339),
	}
}

// HandleCreateJointRequest files an invitation to add a joint holder on the
// caller's account. The identifying document is uploaded separately; the
// request carries its hosted URL.
func (h *JointHandler) HandleCreateJointRequest(w http.ResponseWriter, r *http.Request) {
	var input struct {
		PartnerFirstName   string              `json:"partner_first_name"`
		PartnerLastName    string              `json:"partner_last_name"`
		PartnerEmail       string              `json:"partner_email"`
		PartnerPhoneNumber string              `json:"partner_phone_number"`
		DocumentURL        string              `json:"document_url"`
		Validator          validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	user := context.ContextGetAuthenticatedUser(r)
	accountID := r.PathValue("id")

	input.Validator.Check(validator.NotBlank(input.PartnerFirstName), "Partner first name is required")
	input.Validator.Check(validator.NotBlank(input.PartnerLastName), "Partner last name is required")
	input.Validator.Check(validator.NotBlank(input.PartnerEmail), "Partner email is required")
	input.Validator.Check(validator.IsEmail(input.PartnerEmail), "Partner email must be a valid email address")
	input.Validator.Check(input.PartnerEmail != user.Email, "You cannot add yourself as a joint holder")
	input.Validator.Check(validator.NotBlank(input.PartnerPhoneNumber), "Partner phone number is required")
	input.Validator.Check(validator.Matches(input.PartnerPhoneNumber, validator.RgxPhoneNumber), "Partner phone number must be in international format")
	input.Validator.Check(validator.NotBlank(input.DocumentURL), "Identifying document is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	jointRequest, err := h.Activator.Submit(&joint.SubmitInput{
		AccountID:          accountID,
		RequesterUserID:    user.ID,
		PartnerFirstName:   input.PartnerFirstName,
		PartnerLastName:    input.PartnerLastName,
		PartnerEmail:       input.PartnerEmail,
		PartnerPhoneNumber: input.PartnerPhoneNumber,
		DocumentURL:        input.DocumentURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, joint.ErrAccountNotFound), errors.Is(err, joint.ErrNotAccountOwner):
			h.ErrHandler.NotFound(w, r)
		case errors.Is(err, joint.ErrAccountNotActive),
			errors.Is(err, joint.ErrOutstandingRequest),
			errors.Is(err, joint.ErrAlreadyJoint):
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
		emailData := h.Helper.NewEmailData()
		emailData["Name"] = jointRequest.PartnerFirstName
		emailData["RequesterName"] = user.FirstName + " " + user.LastName
		emailData["DepositAmount"] = jointRequest.DepositAmount.StringFixed(2)

		return h.Mailer.Send(jointRequest.PartnerEmail, emailData, "joint-invitation.tmpl")
	})

	message := "Joint account request submitted for review"
	err = response.JSONCreatedResponse(w, jointRequestResponseData(jointRequest), message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
