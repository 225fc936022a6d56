package ledger

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cradoe/lumenbank/internal/models"
	"github.com/cradoe/lumenbank/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps accounts and transactions in memory with the same
// settlement semantics as the SQL repositories: status preconditions and a
// balance guard applied under one lock.
type fakeStore struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]*models.Transaction),
	}
}

func (s *fakeStore) addAccount(account *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
}

type fakeAccountRepo struct {
	store *fakeStore
}

func (f *fakeAccountRepo) Insert(account *models.Account, tx *sqlx.Tx) (string, error) {
	return "", nil
}

func (f *fakeAccountRepo) GetOne(id string) (*models.Account, bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	account, ok := f.store.accounts[id]
	if !ok {
		return nil, false, nil
	}
	copied := *account
	return &copied, true, nil
}

func (f *fakeAccountRepo) GetAllByUserId(userID string) ([]models.Account, bool, error) {
	return nil, false, nil
}

func (f *fakeAccountRepo) FindByAccountNumber(accountNumber string) (*models.Account, bool, error) {
	return nil, false, nil
}

func (f *fakeAccountRepo) HasActiveByUserId(userID string) (bool, error) {
	return false, nil
}

func (f *fakeAccountRepo) Credit(accountID string, amount decimal.Decimal) (bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.applyDelta(accountID, amount)
}

func (f *fakeAccountRepo) Debit(accountID string, amount decimal.Decimal) (bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.applyDelta(accountID, amount.Neg())
}

func (f *fakeAccountRepo) LinkJointHolder(accountID, holderUserID string) error {
	return nil
}

func (f *fakeAccountRepo) MarkJointRestricted(accountID string) error {
	return nil
}

func (f *fakeAccountRepo) Close(id string) error {
	return nil
}

// applyDelta mirrors the repository's guarded balance update. Callers must
// hold the store lock.
func (s *fakeStore) applyDelta(accountID string, delta decimal.Decimal) (bool, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return false, nil
	}
	if account.Status != repository.AccountActiveStatus {
		return false, repository.ErrAccountNotActive
	}

	next := account.Balance.Add(delta)
	if account.IsAssetType() && next.IsNegative() {
		return false, nil
	}

	account.Balance = next
	account.AvailableBalance = next
	return true, nil
}

type fakeTransactionRepo struct {
	store *fakeStore
}

func (f *fakeTransactionRepo) Insert(transaction *models.Transaction) (*models.Transaction, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	row := *transaction
	row.ID = uuid.NewString()
	row.CreatedAt = time.Now()
	f.store.transactions[row.ID] = &row

	copied := row
	return &copied, nil
}

func (f *fakeTransactionRepo) GetOne(id string) (*models.Transaction, bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	trans, ok := f.store.transactions[id]
	if !ok {
		return nil, false, nil
	}
	copied := *trans
	return &copied, true, nil
}

func (f *fakeTransactionRepo) FindByReference(referenceNumber string) (*models.Transaction, bool, error) {
	return nil, false, nil
}

func (f *fakeTransactionRepo) ListByAccount(accountID string, limit, offset int) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeTransactionRepo) ListByStatus(status string, limit, offset int) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeTransactionRepo) ListDueForAutoComplete(now time.Time, limit int) ([]models.Transaction, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	var due []models.Transaction
	for _, trans := range f.store.transactions {
		if trans.Status == repository.TransactionStatusPending &&
			trans.AutoCompleteAt.Valid && !trans.AutoCompleteAt.Time.After(now) {
			due = append(due, *trans)
		}
	}
	return due, nil
}

func (f *fakeTransactionRepo) Complete(id string) (*models.Transaction, bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	trans, ok := f.store.transactions[id]
	if !ok {
		return nil, false, nil
	}
	if trans.Status != repository.TransactionStatusPending {
		return nil, false, repository.ErrAlreadySettled
	}

	applied, err := f.store.applyDelta(trans.AccountID, trans.SignedAmount())
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return nil, false, repository.ErrInsufficientFunds
	}

	trans.Status = repository.TransactionStatusCompleted
	copied := *trans
	return &copied, true, nil
}

func (f *fakeTransactionRepo) Fail(id string) (bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	trans, ok := f.store.transactions[id]
	if !ok {
		return false, nil
	}
	if trans.Status != repository.TransactionStatusPending {
		return false, nil
	}

	trans.Status = repository.TransactionStatusFailed
	return true, nil
}

func (f *fakeTransactionRepo) SumCompletedCreditsSince(accountID string, since time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{messages: make(map[string][]string)}
}

func (f *fakeProducer) ProduceMessage(topic, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[topic] = append(f.messages[topic], message)
	return nil
}

func (f *fakeProducer) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[topic])
}

func newTestPoster(store *fakeStore, producer *fakeProducer) *Poster {
	return NewPoster(&Poster{
		Accounts:     &fakeAccountRepo{store: store},
		Transactions: &fakeTransactionRepo{store: store},
		Stream:       producer,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func testAccount(balance string) *models.Account {
	return &models.Account{
		ID:          uuid.NewString(),
		UserID:      uuid.NewString(),
		AccountType: models.AccountTypeChecking,
		Status:      repository.AccountActiveStatus,
		Balance:     decimal.RequireFromString(balance),
	}
}

func TestPost_ImmediateCredit(t *testing.T) {
	store := newFakeStore()
	producer := newFakeProducer()
	poster := newTestPoster(store, producer)

	account := testAccount("1000.00")
	store.addAccount(account)

	trans, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("250.00"),
		Direction: models.TransactionDirectionCredit,
		Immediate: true,
	})
	require.NoError(t, err)
	require.Equal(t, repository.TransactionStatusCompleted, trans.Status)
	require.NotEmpty(t, trans.ReferenceNumber)

	updated, found, err := poster.Accounts.GetOne(account.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("1250.00")))

	require.Equal(t, 1, producer.count(TransactionCompletedTopic))
	require.Equal(t, 1, producer.count(NotificationTopic))
}

func TestPost_ImmediateDebitInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, newFakeProducer())

	account := testAccount("1000.00")
	store.addAccount(account)

	_, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("2000.00"),
		Direction: models.TransactionDirectionDebit,
		Immediate: true,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Rejected post leaves neither a row nor a balance change behind.
	require.Empty(t, store.transactions)
	updated, _, _ := poster.Accounts.GetOne(account.ID)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("1000.00")))
}

func TestPost_DeferredTouchesNoMoney(t *testing.T) {
	store := newFakeStore()
	producer := newFakeProducer()
	poster := newTestPoster(store, producer)

	account := testAccount("500.00")
	store.addAccount(account)

	trans, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("400.00"),
		Direction: models.TransactionDirectionDebit,
	})
	require.NoError(t, err)
	require.Equal(t, repository.TransactionStatusPending, trans.Status)
	require.True(t, trans.AutoCompleteAt.Valid)

	updated, _, _ := poster.Accounts.GetOne(account.ID)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("500.00")))
	require.Equal(t, 0, producer.count(TransactionCompletedTopic))
}

func TestPost_DeferredDebitExceedingBalance(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, newFakeProducer())

	account := testAccount("500.00")
	store.addAccount(account)

	_, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("600.00"),
		Direction: models.TransactionDirectionDebit,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// No pending row is parked for a debit the balance cannot cover.
	require.Empty(t, store.transactions)
	updated, _, _ := poster.Accounts.GetOne(account.ID)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("500.00")))
}

func TestPost_Validation(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, newFakeProducer())

	active := testAccount("100.00")
	store.addAccount(active)

	closed := testAccount("100.00")
	closed.Status = repository.AccountClosedStatus
	store.addAccount(closed)

	_, err := poster.Post(&PostInput{
		AccountID: active.ID,
		Amount:    decimal.Zero,
		Direction: models.TransactionDirectionCredit,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = poster.Post(&PostInput{
		AccountID: active.ID,
		Amount:    decimal.NewFromInt(10),
		Direction: "sideways",
	})
	require.ErrorIs(t, err, ErrInvalidDirection)

	_, err = poster.Post(&PostInput{
		AccountID: uuid.NewString(),
		Amount:    decimal.NewFromInt(10),
		Direction: models.TransactionDirectionCredit,
	})
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = poster.Post(&PostInput{
		AccountID: closed.ID,
		Amount:    decimal.NewFromInt(10),
		Direction: models.TransactionDirectionCredit,
	})
	require.ErrorIs(t, err, ErrAccountNotActive)
}

// Concurrent posts against one account must conserve money: every credit
// lands, a debit either applies in full or is rejected, and the final
// balance agrees with the set of transaction rows that were created.
func TestPost_ConcurrentSameAccount(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, newFakeProducer())

	account := testAccount("100.00")
	store.addAccount(account)

	const (
		credits      = 10
		debits       = 20
		creditAmount = "5.00"
		debitAmount  = "10.00"
	)

	var wg sync.WaitGroup
	creditErrs := make(chan error, credits)
	debitErrs := make(chan error, debits)

	for i := 0; i < credits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := poster.Post(&PostInput{
				AccountID: account.ID,
				Amount:    decimal.RequireFromString(creditAmount),
				Direction: models.TransactionDirectionCredit,
				Immediate: true,
			})
			creditErrs <- err
		}()
	}
	for i := 0; i < debits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := poster.Post(&PostInput{
				AccountID: account.ID,
				Amount:    decimal.RequireFromString(debitAmount),
				Direction: models.TransactionDirectionDebit,
				Immediate: true,
			})
			debitErrs <- err
		}()
	}
	wg.Wait()
	close(creditErrs)
	close(debitErrs)

	for err := range creditErrs {
		require.NoError(t, err)
	}

	var settledDebits int
	for err := range debitErrs {
		if err == nil {
			settledDebits++
		} else {
			require.ErrorIs(t, err, ErrInsufficientFunds)
		}
	}

	updated, found, err := poster.Accounts.GetOne(account.ID)
	require.NoError(t, err)
	require.True(t, found)

	// 100 start + 50 credited - 10 per settled debit, and never negative.
	want := decimal.RequireFromString("150.00").
		Sub(decimal.RequireFromString(debitAmount).Mul(decimal.NewFromInt(int64(settledDebits))))
	require.True(t, updated.Balance.Equal(want),
		"balance %s, want %s with %d settled debits", updated.Balance, want, settledDebits)
	require.False(t, updated.Balance.IsNegative())

	// Exactly one completed row per applied post, none for rejected debits.
	require.Len(t, store.transactions, credits+settledDebits)
	for _, trans := range store.transactions {
		require.Equal(t, repository.TransactionStatusCompleted, trans.Status)
	}
}

func TestApprove_SettlesExactlyOnce(t *testing.T) {
	store := newFakeStore()
	producer := newFakeProducer()
	poster := newTestPoster(store, producer)

	account := testAccount("1000.00")
	store.addAccount(account)

	trans, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("300.00"),
		Direction: models.TransactionDirectionCredit,
	})
	require.NoError(t, err)

	require.NoError(t, poster.Approve(trans.ID))
	require.ErrorIs(t, poster.Approve(trans.ID), ErrTransactionSettled)

	updated, _, _ := poster.Accounts.GetOne(account.ID)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("1300.00")))
	require.Equal(t, 1, producer.count(TransactionCompletedTopic))
}

func TestApprove_ConcurrentSingleWinner(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, newFakeProducer())

	account := testAccount("1000.00")
	store.addAccount(account)

	trans, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("100.00"),
		Direction: models.TransactionDirectionCredit,
	})
	require.NoError(t, err)

	const callers = 8
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- poster.Approve(trans.ID)
		}()
	}
	wg.Wait()
	close(errs)

	var winners int
	for err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, ErrTransactionSettled)
		}
	}
	require.Equal(t, 1, winners)

	updated, _, _ := poster.Accounts.GetOne(account.ID)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("1100.00")))
}

func TestApprove_DebitNoLongerFitsFailsTransaction(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, newFakeProducer())

	account := testAccount("500.00")
	store.addAccount(account)

	held, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("400.00"),
		Direction: models.TransactionDirectionDebit,
	})
	require.NoError(t, err)

	// Drain the account while the debit is held for approval.
	_, err = poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("450.00"),
		Direction: models.TransactionDirectionDebit,
		Immediate: true,
	})
	require.NoError(t, err)

	require.ErrorIs(t, poster.Approve(held.ID), ErrInsufficientFunds)

	// Marked failed, not left pending for the sweep to retry.
	settled, found, err := poster.Transactions.GetOne(held.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, repository.TransactionStatusFailed, settled.Status)
}

func TestReject(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, newFakeProducer())

	account := testAccount("1000.00")
	store.addAccount(account)

	trans, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("300.00"),
		Direction: models.TransactionDirectionCredit,
	})
	require.NoError(t, err)

	require.NoError(t, poster.Reject(trans.ID))

	updated, _, _ := poster.Accounts.GetOne(account.ID)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("1000.00")))

	require.ErrorIs(t, poster.Reject(trans.ID), ErrTransactionSettled)
	require.ErrorIs(t, poster.Approve(trans.ID), ErrTransactionSettled)
	require.ErrorIs(t, poster.Approve(uuid.NewString()), ErrTransactionNotFound)
}

func TestApproveBatch_ReportsEveryItem(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, newFakeProducer())

	account := testAccount("1000.00")
	store.addAccount(account)

	first, err := poster.Post(&PostInput{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("100.00"),
		Direction: models.TransactionDirectionCredit,
	})
	require.NoError(t, err)

	missing := uuid.NewString()

	outcomes := poster.ApproveBatch([]string{first.ID, missing})
	require.Len(t, outcomes, 2)

	require.True(t, outcomes[0].Succeeded)
	require.Empty(t, outcomes[0].Error)

	require.False(t, outcomes[1].Succeeded)
	require.Equal(t, ErrTransactionNotFound.Error(), outcomes[1].Error)
}
