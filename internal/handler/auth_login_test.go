package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cradoe/lumenbank/internal/cache"
	"github.com/cradoe/lumenbank/internal/config"
	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/helper"
	"github.com/cradoe/lumenbank/internal/lifecycle"
	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserRepo implements UserRepository but only mocks the needed methods.
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Insert(user *models.User, tx *sqlx.Tx) (string, error) {
	return "", nil
}

func (m *MockUserRepo) GetOne(id string) (*models.User, bool, error) {
	return nil, false, nil
}

func (m *MockUserRepo) GetByEmail(email string) (*models.User, bool, error) {
	args := m.Called(email)
	return args.Get(0).(*models.User), args.Bool(1), args.Error(2)
}

func (m *MockUserRepo) GetAll() ([]models.User, error) {
	return nil, nil
}

func (m *MockUserRepo) CheckIfPhoneNumberExist(phoneNumber string) (bool, error) {
	return false, nil
}

func (m *MockUserRepo) SetEmailVerified(id string) error {
	return nil
}

func (m *MockUserRepo) SetQRVerified(id string, tx *sqlx.Tx) error {
	return nil
}

func (m *MockUserRepo) EnableTransact(id string, tx *sqlx.Tx) error {
	return nil
}

func (m *MockUserRepo) UpdatePassword(id, hashedPassword string) error {
	return nil
}

func (m *MockUserRepo) ChangePin(id string, pin int) error {
	return nil
}

func (m *MockUserRepo) Lock(id string) error {
	return nil
}

type MockApplicationRepo struct {
	mock.Mock
}

func (m *MockApplicationRepo) Insert(application *models.AccountApplication, tx *sqlx.Tx) (string, error) {
	return "", nil
}

func (m *MockApplicationRepo) GetOne(id string) (*models.AccountApplication, bool, error) {
	return nil, false, nil
}

func (m *MockApplicationRepo) GetByUserID(userID string) (*models.AccountApplication, bool, error) {
	args := m.Called(userID)
	return args.Get(0).(*models.AccountApplication), args.Bool(1), args.Error(2)
}

func (m *MockApplicationRepo) ListByStatus(status string, limit, offset int) ([]models.AccountApplication, error) {
	return nil, nil
}

func (m *MockApplicationRepo) SetQRCodeVerified(id string, tx *sqlx.Tx) error {
	return nil
}

func (m *MockApplicationRepo) Approve(id, decidedBy string, tx *sqlx.Tx) (bool, error) {
	return false, nil
}

func (m *MockApplicationRepo) Reject(id, decidedBy, reason string) (bool, error) {
	return false, nil
}

func (m *MockApplicationRepo) ForceApprove(id string) error {
	return nil
}

// MockDatabase wires the mocked repositories behind the Database interface.
type MockDatabase struct {
	Users        *MockUserRepo
	Applications *MockApplicationRepo
}

func (db *MockDatabase) User() repository.UserRepository               { return db.Users }
func (db *MockDatabase) Application() repository.ApplicationRepository { return db.Applications }
func (db *MockDatabase) Account() repository.AccountRepository         { return nil }
func (db *MockDatabase) Transaction() repository.TransactionRepository { return nil }
func (db *MockDatabase) JointRequest() repository.JointRequestRepository {
	return nil
}
func (db *MockDatabase) AuditLog() repository.AuditLogRepository         { return nil }
func (db *MockDatabase) Notification() repository.NotificationRepository { return nil }
func (db *MockDatabase) Close() error                                    { return nil }

func (db *MockDatabase) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, errors.New("transactions are not supported in tests")
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(recipient string, data any, patterns ...string) error {
	args := m.Called(recipient, data, patterns)
	return args.Error(0)
}

func newTestAuthHandler(db *MockDatabase) *AuthHandler {
	var baseURL = "http://localhost"
	var wg sync.WaitGroup

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := new(MockMailer)

	cfg := &config.Config{
		BaseURL:     baseURL,
		RedisServer: "localhost:6379",
	}
	cfg.Jwt.SecretKey = "test_secret"
	cfg.Notifications.Email = "no-reply@example.com"

	return NewAuthHandler(&AuthHandler{
		DB:         db,
		Cache:      cache.New(cfg.RedisServer, 0),
		Mailer:     mailer,
		Helper:     helper.New(&baseURL, &wg, nil),
		ErrHandler: errHandler.New(cfg.Notifications.Email, cfg.BaseURL, mailer, logger),
		Config:     cfg,
	})
}

// hash of "correctpassword"
const testPasswordHash = "$2a$10$oiIYEECpY/GRNs9Fi7Yh1.o4Dw2fTD26eu5z48KYgXkMuOiWlSvqG"

func loginRequest(t *testing.T, email, password string) *http.Request {
	t.Helper()

	requestBody, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/auth/login", bytes.NewBuffer(requestBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func TestHandleAuthLogin_ValidCredentials(t *testing.T) {
	mockUserRepo := new(MockUserRepo)
	mockApplicationRepo := new(MockApplicationRepo)

	testUser := &models.User{
		ID:             "123",
		Email:          "test@example.com",
		HashedPassword: testPasswordHash,
		Status:         repository.UserAccountActiveStatus,
		EmailVerified:  true,
		QRVerified:     true,
		CanTransact:    true,
	}
	testApplication := &models.AccountApplication{
		ID:     "app-1",
		UserID: testUser.ID,
		Status: repository.ApplicationStatusApproved,
	}

	mockUserRepo.On("GetByEmail", "test@example.com").Return(testUser, true, nil)
	mockApplicationRepo.On("GetByUserID", testUser.ID).Return(testApplication, true, nil)

	authHandler := newTestAuthHandler(&MockDatabase{
		Users:        mockUserRepo,
		Applications: mockApplicationRepo,
	})

	rr := httptest.NewRecorder()
	authHandler.HandleAuthLogin(rr, loginRequest(t, "test@example.com", "correctpassword"))

	require.Equal(t, http.StatusOK, rr.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	require.Contains(t, response, "data")

	data, ok := response["data"].(map[string]any)
	require.True(t, ok, "Expected response['data'] to be a map")

	require.NotEmpty(t, data["auth_token"])
	require.Contains(t, data, "token_expiry")

	expiry, err := time.Parse(time.RFC3339, data["token_expiry"].(string))
	require.NoError(t, err)
	require.True(t, expiry.After(time.Now()))

	mockUserRepo.AssertExpectations(t)
	mockApplicationRepo.AssertExpectations(t)
}

func TestHandleAuthLogin_BlockedWhileUnderReview(t *testing.T) {
	mockUserRepo := new(MockUserRepo)
	mockApplicationRepo := new(MockApplicationRepo)

	testUser := &models.User{
		ID:             "123",
		Email:          "pending@example.com",
		HashedPassword: testPasswordHash,
		Status:         repository.UserAccountActiveStatus,
		EmailVerified:  true,
		QRVerified:     true,
	}
	testApplication := &models.AccountApplication{
		ID:     "app-1",
		UserID: testUser.ID,
		Status: repository.ApplicationStatusPending,
	}

	mockUserRepo.On("GetByEmail", "pending@example.com").Return(testUser, true, nil)
	mockApplicationRepo.On("GetByUserID", testUser.ID).Return(testApplication, true, nil)

	authHandler := newTestAuthHandler(&MockDatabase{
		Users:        mockUserRepo,
		Applications: mockApplicationRepo,
	})

	rr := httptest.NewRecorder()
	authHandler.HandleAuthLogin(rr, loginRequest(t, "pending@example.com", "correctpassword"))

	require.Equal(t, http.StatusForbidden, rr.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	require.Equal(t, lifecycle.ReasonUnderReview, response["message"])
	require.NotContains(t, rr.Body.String(), "auth_token")
}

func TestHandleAuthLogin_BypassSkipsGate(t *testing.T) {
	mockUserRepo := new(MockUserRepo)
	mockApplicationRepo := new(MockApplicationRepo)

	testUser := &models.User{
		ID:             "123",
		Email:          "dev@example.com",
		HashedPassword: testPasswordHash,
		Status:         repository.UserAccountActiveStatus,
	}

	mockUserRepo.On("GetByEmail", "dev@example.com").Return(testUser, true, nil)

	authHandler := newTestAuthHandler(&MockDatabase{
		Users:        mockUserRepo,
		Applications: mockApplicationRepo,
	})
	authHandler.Config.Verification.BypassEmails = []string{"dev@example.com"}

	rr := httptest.NewRecorder()
	authHandler.HandleAuthLogin(rr, loginRequest(t, "dev@example.com", "correctpassword"))

	require.Equal(t, http.StatusOK, rr.Code)

	// The gate must not have been consulted at all.
	mockApplicationRepo.AssertNotCalled(t, "GetByUserID", mock.Anything)
}

func TestHandleAuthLogin_WrongPassword(t *testing.T) {
	mockUserRepo := new(MockUserRepo)

	testUser := &models.User{
		ID:             "123",
		Email:          "test@example.com",
		HashedPassword: testPasswordHash,
		Status:         repository.UserAccountActiveStatus,
	}

	mockUserRepo.On("GetByEmail", "test@example.com").Return(testUser, true, nil)

	authHandler := newTestAuthHandler(&MockDatabase{
		Users:        mockUserRepo,
		Applications: new(MockApplicationRepo),
	})

	rr := httptest.NewRecorder()
	authHandler.HandleAuthLogin(rr, loginRequest(t, "test@example.com", "wrongpassword"))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.NotContains(t, rr.Body.String(), "auth_token")
}
