package joint

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubAccountRepo struct {
	accounts map[string]*models.Account

	linkedHolder   string
	markedAccounts []string
	linkHolderErr  error
}

func (s *stubAccountRepo) Insert(account *models.Account, tx *sqlx.Tx) (string, error) {
	return "", nil
}

func (s *stubAccountRepo) GetOne(id string) (*models.Account, bool, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, false, nil
	}
	copied := *account
	return &copied, true, nil
}

func (s *stubAccountRepo) GetAllByUserId(userID string) ([]models.Account, bool, error) {
	return nil, false, nil
}

func (s *stubAccountRepo) FindByAccountNumber(accountNumber string) (*models.Account, bool, error) {
	return nil, false, nil
}

func (s *stubAccountRepo) HasActiveByUserId(userID string) (bool, error) {
	return false, nil
}

func (s *stubAccountRepo) Credit(accountID string, amount decimal.Decimal) (bool, error) {
	return true, nil
}

func (s *stubAccountRepo) Debit(accountID string, amount decimal.Decimal) (bool, error) {
	return true, nil
}

func (s *stubAccountRepo) LinkJointHolder(accountID, holderUserID string) error {
	if s.linkHolderErr != nil {
		return s.linkHolderErr
	}
	s.linkedHolder = holderUserID
	if account, ok := s.accounts[accountID]; ok {
		account.JointHolderID.String = holderUserID
		account.JointHolderID.Valid = true
		account.JointRestricted = true
	}
	return nil
}

func (s *stubAccountRepo) MarkJointRestricted(accountID string) error {
	s.markedAccounts = append(s.markedAccounts, accountID)
	if account, ok := s.accounts[accountID]; ok {
		account.JointRestricted = true
	}
	return nil
}

func (s *stubAccountRepo) Close(id string) error {
	return nil
}

// stubRequestRepo mimics the SQL repository's precondition semantics:
// SetStatus only succeeds from pending.
type stubRequestRepo struct {
	requests map[string]*models.JointAccountRequest
}

func (s *stubRequestRepo) Insert(request *models.JointAccountRequest) (string, error) {
	row := *request
	row.ID = uuid.NewString()
	row.Status = repository.JointRequestStatusPending
	row.CreatedAt = time.Now()
	s.requests[row.ID] = &row
	return row.ID, nil
}

func (s *stubRequestRepo) GetOne(id string) (*models.JointAccountRequest, bool, error) {
	request, ok := s.requests[id]
	if !ok {
		return nil, false, nil
	}
	copied := *request
	return &copied, true, nil
}

func (s *stubRequestRepo) GetPendingByAccount(accountID string) (*models.JointAccountRequest, bool, error) {
	for _, request := range s.requests {
		if request.AccountID == accountID && request.Status == repository.JointRequestStatusPending {
			copied := *request
			return &copied, true, nil
		}
	}
	return nil, false, nil
}

func (s *stubRequestRepo) ListByStatus(status string, limit, offset int) ([]models.JointAccountRequest, error) {
	return nil, nil
}

func (s *stubRequestRepo) MarkAdminApproved(id string) error {
	s.requests[id].AdminApproved = true
	return nil
}

func (s *stubRequestRepo) MarkDepositReceived(id string) error {
	s.requests[id].DepositReceived = true
	return nil
}

func (s *stubRequestRepo) SetStatus(id, status string) (bool, error) {
	request, ok := s.requests[id]
	if !ok || request.Status != repository.JointRequestStatusPending {
		return false, nil
	}
	request.Status = status
	return true, nil
}

type stubTransactionRepo struct {
	creditTotal decimal.Decimal
}

func (s *stubTransactionRepo) Insert(transaction *models.Transaction) (*models.Transaction, error) {
	return transaction, nil
}

func (s *stubTransactionRepo) GetOne(id string) (*models.Transaction, bool, error) {
	return nil, false, nil
}

func (s *stubTransactionRepo) FindByReference(referenceNumber string) (*models.Transaction, bool, error) {
	return nil, false, nil
}

func (s *stubTransactionRepo) ListByAccount(accountID string, limit, offset int) ([]models.Transaction, error) {
	return nil, nil
}

func (s *stubTransactionRepo) ListByStatus(status string, limit, offset int) ([]models.Transaction, error) {
	return nil, nil
}

func (s *stubTransactionRepo) ListDueForAutoComplete(now time.Time, limit int) ([]models.Transaction, error) {
	return nil, nil
}

func (s *stubTransactionRepo) Complete(id string) (*models.Transaction, bool, error) {
	return nil, false, nil
}

func (s *stubTransactionRepo) Fail(id string) (bool, error) {
	return false, nil
}

func (s *stubTransactionRepo) SumCompletedCreditsSince(accountID string, since time.Time) (decimal.Decimal, error) {
	return s.creditTotal, nil
}

type stubUserRepo struct {
	byEmail map[string]*models.User
}

func (s *stubUserRepo) Insert(user *models.User, tx *sqlx.Tx) (string, error) { return "", nil }

func (s *stubUserRepo) GetOne(id string) (*models.User, bool, error) { return nil, false, nil }

func (s *stubUserRepo) GetByEmail(email string) (*models.User, bool, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, false, nil
	}
	return user, true, nil
}

func (s *stubUserRepo) GetAll() ([]models.User, error) { return nil, nil }

func (s *stubUserRepo) CheckIfPhoneNumberExist(phoneNumber string) (bool, error) {
	return false, nil
}

func (s *stubUserRepo) SetEmailVerified(id string) error { return nil }

func (s *stubUserRepo) SetQRVerified(id string, tx *sqlx.Tx) error { return nil }

func (s *stubUserRepo) EnableTransact(id string, tx *sqlx.Tx) error { return nil }

func (s *stubUserRepo) UpdatePassword(id, hashedPassword string) error { return nil }

func (s *stubUserRepo) ChangePin(id string, pin int) error { return nil }

func (s *stubUserRepo) Lock(id string) error { return nil }

type stubProducer struct {
	produced int
}

func (s *stubProducer) ProduceMessage(topic, message string) error {
	s.produced++
	return nil
}

type activatorFixture struct {
	activator    *Activator
	accounts     *stubAccountRepo
	requests     *stubRequestRepo
	transactions *stubTransactionRepo
	users        *stubUserRepo
	account      *models.Account
}

func newActivatorFixture(balance string) *activatorFixture {
	account := &models.Account{
		ID:          uuid.NewString(),
		UserID:      uuid.NewString(),
		AccountType: models.AccountTypeChecking,
		Status:      repository.AccountActiveStatus,
		Balance:     decimal.RequireFromString(balance),
	}

	accounts := &stubAccountRepo{accounts: map[string]*models.Account{account.ID: account}}
	requests := &stubRequestRepo{requests: make(map[string]*models.JointAccountRequest)}
	transactions := &stubTransactionRepo{creditTotal: decimal.Zero}
	users := &stubUserRepo{byEmail: make(map[string]*models.User)}

	return &activatorFixture{
		activator: NewActivator(&Activator{
			Accounts:     accounts,
			Requests:     requests,
			Transactions: transactions,
			Users:        users,
			Stream:       &stubProducer{},
			Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		}),
		accounts:     accounts,
		requests:     requests,
		transactions: transactions,
		users:        users,
		account:      account,
	}
}

func (f *activatorFixture) submit(t *testing.T) *models.JointAccountRequest {
	t.Helper()

	request, err := f.activator.Submit(&SubmitInput{
		AccountID:          f.account.ID,
		RequesterUserID:    f.account.UserID,
		PartnerFirstName:   "Ada",
		PartnerLastName:    "Obi",
		PartnerEmail:       "ada@example.com",
		PartnerPhoneNumber: "08011111111",
	})
	require.NoError(t, err)
	return request
}

func TestSubmit_FreezesDepositRequirement(t *testing.T) {
	fixture := newActivatorFixture("5000.00")

	request := fixture.submit(t)
	require.True(t, request.DepositAmount.Equal(decimal.RequireFromString("50.00")))

	// A later balance change must not move the requirement.
	fixture.account.Balance = decimal.RequireFromString("90000.00")

	stored, found, err := fixture.requests.GetOne(request.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, stored.DepositAmount.Equal(decimal.RequireFromString("50.00")))
}

func TestSubmit_Guards(t *testing.T) {
	fixture := newActivatorFixture("5000.00")

	_, err := fixture.activator.Submit(&SubmitInput{
		AccountID:       uuid.NewString(),
		RequesterUserID: fixture.account.UserID,
	})
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = fixture.activator.Submit(&SubmitInput{
		AccountID:       fixture.account.ID,
		RequesterUserID: uuid.NewString(),
	})
	require.ErrorIs(t, err, ErrNotAccountOwner)

	fixture.submit(t)

	_, err = fixture.activator.Submit(&SubmitInput{
		AccountID:       fixture.account.ID,
		RequesterUserID: fixture.account.UserID,
	})
	require.ErrorIs(t, err, ErrOutstandingRequest)
}

func TestActivation_ApprovalThenDeposit(t *testing.T) {
	fixture := newActivatorFixture("5000.00")
	request := fixture.submit(t)

	require.NoError(t, fixture.activator.Approve(request.ID))

	// Approved but no deposit yet: still pending, account untouched.
	stored, _, _ := fixture.requests.GetOne(request.ID)
	require.Equal(t, repository.JointRequestStatusPending, stored.Status)
	require.False(t, fixture.account.JointRestricted)

	fixture.transactions.creditTotal = decimal.RequireFromString("50.00")
	require.NoError(t, fixture.activator.RecordDeposit(fixture.account.ID))

	stored, _, _ = fixture.requests.GetOne(request.ID)
	require.Equal(t, repository.JointRequestStatusApproved, stored.Status)
	require.True(t, fixture.account.JointRestricted)
}

func TestActivation_DepositThenApproval(t *testing.T) {
	fixture := newActivatorFixture("5000.00")
	request := fixture.submit(t)

	fixture.transactions.creditTotal = decimal.RequireFromString("60.00")
	require.NoError(t, fixture.activator.RecordDeposit(fixture.account.ID))

	// Deposit alone must not activate.
	stored, _, _ := fixture.requests.GetOne(request.ID)
	require.Equal(t, repository.JointRequestStatusPending, stored.Status)
	require.True(t, stored.DepositReceived)

	require.NoError(t, fixture.activator.Approve(request.ID))

	stored, _, _ = fixture.requests.GetOne(request.ID)
	require.Equal(t, repository.JointRequestStatusApproved, stored.Status)
}

func TestActivation_InsufficientDepositWaits(t *testing.T) {
	fixture := newActivatorFixture("5000.00")
	request := fixture.submit(t)

	require.NoError(t, fixture.activator.Approve(request.ID))

	fixture.transactions.creditTotal = decimal.RequireFromString("49.99")
	require.NoError(t, fixture.activator.RecordDeposit(fixture.account.ID))

	stored, _, _ := fixture.requests.GetOne(request.ID)
	require.Equal(t, repository.JointRequestStatusPending, stored.Status)
	require.False(t, stored.DepositReceived)
}

func TestActivation_PartnerWithAccountIsLinked(t *testing.T) {
	fixture := newActivatorFixture("5000.00")

	partner := &models.User{ID: uuid.NewString(), Email: "ada@example.com"}
	fixture.users.byEmail[partner.Email] = partner

	request := fixture.submit(t)

	fixture.transactions.creditTotal = decimal.RequireFromString("50.00")
	require.NoError(t, fixture.activator.Approve(request.ID))

	require.Equal(t, partner.ID, fixture.accounts.linkedHolder)
	require.Empty(t, fixture.accounts.markedAccounts)
}

func TestActivation_PartnerWithoutAccountRestrictsOnly(t *testing.T) {
	fixture := newActivatorFixture("5000.00")
	request := fixture.submit(t)

	fixture.transactions.creditTotal = decimal.RequireFromString("50.00")
	require.NoError(t, fixture.activator.Approve(request.ID))

	require.Empty(t, fixture.accounts.linkedHolder)
	require.Equal(t, []string{fixture.account.ID}, fixture.accounts.markedAccounts)
}

// A failure while flagging the account must not strand the request in
// approved: it stays pending and the next deposit event activates it.
func TestActivation_AccountWriteFailureRetries(t *testing.T) {
	fixture := newActivatorFixture("5000.00")

	partner := &models.User{ID: uuid.NewString(), Email: "ada@example.com"}
	fixture.users.byEmail[partner.Email] = partner

	request := fixture.submit(t)

	fixture.transactions.creditTotal = decimal.RequireFromString("50.00")
	fixture.accounts.linkHolderErr = errors.New("connection reset")

	require.Error(t, fixture.activator.Approve(request.ID))

	stored, _, _ := fixture.requests.GetOne(request.ID)
	require.Equal(t, repository.JointRequestStatusPending, stored.Status)
	require.Empty(t, fixture.accounts.linkedHolder)

	fixture.accounts.linkHolderErr = nil
	require.NoError(t, fixture.activator.RecordDeposit(fixture.account.ID))

	stored, _, _ = fixture.requests.GetOne(request.ID)
	require.Equal(t, repository.JointRequestStatusApproved, stored.Status)
	require.Equal(t, partner.ID, fixture.accounts.linkedHolder)
}

func TestReject_IsTerminal(t *testing.T) {
	fixture := newActivatorFixture("5000.00")
	request := fixture.submit(t)

	require.NoError(t, fixture.activator.Reject(request.ID))
	require.ErrorIs(t, fixture.activator.Reject(request.ID), ErrRequestSettled)
	require.ErrorIs(t, fixture.activator.Approve(request.ID), ErrRequestSettled)

	// A qualifying deposit after rejection does nothing.
	fixture.transactions.creditTotal = decimal.RequireFromString("500.00")
	require.NoError(t, fixture.activator.RecordDeposit(fixture.account.ID))

	stored, _, _ := fixture.requests.GetOne(request.ID)
	require.Equal(t, repository.JointRequestStatusRejected, stored.Status)
	require.False(t, fixture.account.JointRestricted)
}
