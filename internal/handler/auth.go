package handler

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"github.com/cradoe/lumenbank/internal/cache"
	"github.com/cradoe/lumenbank/internal/config"
	"github.com/cradoe/lumenbank/internal/context"
	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/helper"
	"github.com/cradoe/lumenbank/internal/lifecycle"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/cradoe/lumenbank/internal/request"
	"github.com/cradoe/lumenbank/internal/response"
	"github.com/cradoe/lumenbank/internal/smtp"
	"github.com/cradoe/lumenbank/internal/validator"

	"github.com/cradoe/gopass"
	"github.com/google/uuid"
	"github.com/pascaldekloe/jwt"
)

var (
	ErrAccountLocked   = errors.New("account has been locked. Please contact support")
	ErrInvalidOTP      = errors.New("the code is invalid or has expired")
	ErrInvalidSecret   = errors.New("the secret key is not correct")
	ErrAlreadyVerified = errors.New("this step has already been completed")
)

const (
	otpExpiry       = 15 * time.Minute
	otpExpiryText   = "15"
	failedLoginTTL  = 15 * time.Minute
	maxFailedLogins = 3
)

type AuthHandler struct {
	DB         repository.Database
	Cache      *cache.Cache
	Mailer     smtp.MailerInterface
	Helper     *helper.HelperRepository
	ErrHandler *errHandler.ErrorHandler
	Config     *config.Config
}

func NewAuthHandler(handler *AuthHandler) *AuthHandler {
	return handler
}

// Registration opens the application: the user record, the pending
// application, and the account are created in one database transaction so a
// partial signup can never exist. The account starts active but transacting
// stays off until the application is approved.
func (h *AuthHandler) HandleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email       string              `json:"email"`
		Password    string              `json:"password"`
		FirstName   string              `json:"first_name"`
		LastName    string              `json:"last_name"`
		PhoneNumber string              `json:"phone_number"`
		AccountType string              `json:"account_type"`
		Validator   validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	// password strength is checked first; there is no point validating the
	// rest of the form around a password we will reject anyway
	_, errs := gopass.Validate(input.Password)
	if errs != nil {
		h.ErrHandler.FailedValidation(w, r, errs)
		return
	}

	_, found, err := h.DB.User().GetByEmail(input.Email)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Email), "Email is required")
	input.Validator.Check(validator.IsEmail(input.Email), "Must be a valid email address")
	input.Validator.Check(!found, "Email is already in use")

	input.Validator.Check(validator.NotBlank(input.FirstName), "First name is required")
	input.Validator.Check(validator.NotBlank(input.LastName), "Last name is required")

	input.Validator.Check(validator.NotBlank(input.PhoneNumber), "Phone number is required")
	input.Validator.Check(validator.Matches(input.PhoneNumber, validator.RgxPhoneNumber), "Phone number must be in international format")

	input.Validator.Check(validator.In(input.AccountType,
		models.AccountTypeChecking, models.AccountTypeSavings), "Account type must be checking or savings")

	found, err = h.DB.User().CheckIfPhoneNumberExist(input.PhoneNumber)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	input.Validator.Check(!found, "Phone number has been registered")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	hashedPassword, err := gopass.Hash(input.Password)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
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

	createdUser := &models.User{
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		Email:          input.Email,
		PhoneNumber:    input.PhoneNumber,
		Role:           repository.UserRoleCustomer,
		HashedPassword: hashedPassword,
	}

	userID, err := h.DB.User().Insert(createdUser, tx)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	secretKey := uuid.NewString()

	application := &models.AccountApplication{
		UserID:       userID,
		Email:        input.Email,
		FullName:     input.FirstName + " " + input.LastName,
		AccountType:  input.AccountType,
		QRCodeSecret: secretKey,
	}

	_, err = h.DB.Application().Insert(application, tx)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	account := &models.Account{
		UserID:        userID,
		AccountType:   input.AccountType,
		AccountNumber: accountNumberFromPhone(input.PhoneNumber),
	}

	_, err = h.DB.Account().Insert(account, tx)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err = tx.Commit(); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		emailData := h.Helper.NewEmailData()
		emailData["Name"] = createdUser.FirstName
		emailData["AccountNumber"] = account.AccountNumber
		emailData["SecretKey"] = secretKey

		return h.Mailer.Send(createdUser.Email, emailData, "secret-key.tmpl")
	})

	h.Helper.BackgroundTask(r, func() error {
		return h.sendEmailOTP(userID, createdUser.FirstName, createdUser.Email)
	})

	message := "Account created successfully. Check your email for your verification code and secret key."

	err = response.JSONCreatedResponse(w, nil, message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AuthHandler) sendEmailOTP(userID, firstName, email string) error {
	code := fmt.Sprintf("%06d", rand.IntN(1_000_000))

	if err := h.Cache.Set("otp:"+userID, code, otpExpiry); err != nil {
		return err
	}

	emailData := h.Helper.NewEmailData()
	emailData["Name"] = firstName
	emailData["Code"] = code
	emailData["ExpiresIn"] = otpExpiryText

	return h.Mailer.Send(email, emailData, "otp.tmpl")
}

func (h *AuthHandler) HandleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email     string              `json:"email"`
		Password  string              `json:"password"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	user, found, err := h.DB.User().GetByEmail(input.Email)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Email), "Email is required")
	input.Validator.Check(validator.IsEmail(input.Email), "Must be a valid email address")
	input.Validator.Check(found, "Incorrect email/password")

	if found {
		passwordMatches, err := gopass.ComparePasswordAndHash(input.Password, user.HashedPassword)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
			return
		}

		input.Validator.Check(validator.NotBlank(input.Password), "Password is required")
		input.Validator.Check(passwordMatches, "Incorrect email/password")

		if !passwordMatches {
			// lock the account after repeated consecutive failures
			count, err := h.Cache.Increment("failed_login:"+user.ID, failedLoginTTL)
			if err != nil {
				log.Printf("Error counting failed login attempts: %v", err)
			}

			if count >= maxFailedLogins {
				h.Helper.BackgroundTask(r, func() error {
					return h.DB.User().Lock(user.ID)
				})

				h.ErrHandler.FailedValidation(w, r, []string{ErrAccountLocked.Error()})
				return
			}
		}
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	if user.Status != repository.UserAccountActiveStatus {
		err = response.JSONErrorResponse(w, nil, ErrAccountLocked.Error(), http.StatusForbidden, nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	// The eligibility gate runs at this boundary. The bypass list is a
	// development convenience held in config; the gate itself knows nothing
	// about it.
	if !slices.Contains(h.Config.Verification.BypassEmails, user.Email) {
		application, found, err := h.DB.Application().GetByUserID(user.ID)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
			return
		}
		if !found {
			application = nil
		}

		decision := lifecycle.Evaluate(user, application)
		if !decision.MayAuthenticate {
			err = response.JSONErrorResponse(w, nil, decision.Reason, http.StatusForbidden, nil)
			if err != nil {
				h.ErrHandler.ServerError(w, r, err)
			}
			return
		}
	}

	if err := h.Cache.Delete("failed_login:" + user.ID); err != nil {
		log.Printf("Error resetting failed login attempts: %v", err)
	}

	var claims jwt.Claims
	claims.Subject = user.ID

	expiry := time.Now().Add(24 * time.Hour)
	claims.Issued = jwt.NewNumericTime(time.Now())
	claims.NotBefore = jwt.NewNumericTime(time.Now())
	claims.Expires = jwt.NewNumericTime(expiry)

	claims.Issuer = h.Config.BaseURL
	claims.Audiences = []string{h.Config.BaseURL}

	jwtBytes, err := claims.HMACSign(jwt.HS256, []byte(h.Config.Jwt.SecretKey))
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := map[string]string{
		"auth_token":   string(jwtBytes),
		"token_expiry": expiry.Format(time.RFC3339),
	}
	message := "Login successful"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleVerifyEmail confirms control of the mailbox with the mailed
// one-time code.
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email     string              `json:"email"`
		Code      string              `json:"code"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Email), "Email is required")
	input.Validator.Check(validator.NotBlank(input.Code), "Code is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	user, found, err := h.DB.User().GetByEmail(input.Email)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	if user.EmailVerified {
		err = response.JSONOkResponse(w, nil, "Email is already verified", nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	stored, err := h.Cache.Get("otp:" + user.ID)
	if err != nil || stored != input.Code {
		input.Validator.AddError(ErrInvalidOTP.Error())
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	if err := h.DB.User().SetEmailVerified(user.ID); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err := h.Cache.Delete("otp:" + user.ID); err != nil {
		log.Printf("Error clearing used OTP: %v", err)
	}

	message := "Email verified successfully"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleVerifySecretKey checks the mailed secret key and marks the step
// complete. The user flag and the application projection are written in one
// transaction so the two records cannot disagree.
func (h *AuthHandler) HandleVerifySecretKey(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email     string              `json:"email"`
		SecretKey string              `json:"secret_key"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Email), "Email is required")
	input.Validator.Check(validator.NotBlank(input.SecretKey), "Secret key is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	user, found, err := h.DB.User().GetByEmail(input.Email)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	application, found, err := h.DB.Application().GetByUserID(user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	if user.QRVerified {
		err = response.JSONOkResponse(w, nil, "Secret key is already verified", nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	if application.QRCodeSecret != input.SecretKey {
		input.Validator.AddError(ErrInvalidSecret.Error())
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
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

	if err = h.DB.User().SetQRVerified(user.ID, tx); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err = h.DB.Application().SetQRCodeVerified(application.ID, tx); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err = tx.Commit(); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "Secret key verified. Your application is now under review."
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AuthHandler) HandleSetPin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Pin       int                 `json:"pin"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(input.Pin >= 1000 && input.Pin <= 9999, "Pin must be a 4-digit number")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	user := context.ContextGetAuthenticatedUser(r)

	if err := h.DB.User().ChangePin(user.ID, input.Pin); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "Pin set successfully"
	err = response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// accountNumberFromPhone derives the account number from the last ten
// digits of the phone number, which is unique per user.
func accountNumberFromPhone(phoneNumber string) string {
	if len(phoneNumber) > 10 {
		return phoneNumber[len(phoneNumber)-10:]
	}
	return phoneNumber
}
