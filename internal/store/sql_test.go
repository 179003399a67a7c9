package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"credit-ledger/internal/domain"
	"credit-ledger/internal/repository"
	"credit-ledger/internal/util"
	"credit-ledger/pkg/db" // Import pkg/db for interfaces and function types
)

// MockDBExecutor is a mock implementation of repository.DBExecutor.
type MockDBExecutor struct {
	mock.Mock
}

func (m *MockDBExecutor) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	argsCalled := m.Called(ctx, query, args)
	return argsCalled.Get(0).(sql.Result), argsCalled.Error(1)
}

func (m *MockDBExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	m.Called(ctx, query, args)
	return &sql.Row{}
}

// MockAccountRepository is a mock implementation of repository.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.Account) error {
	args := m.Called(ctx, q, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetAccountByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Account, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) GetAccountForUpdate(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Account, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) AddToBalance(ctx context.Context, q repository.DBExecutor, id int64, delta int64) (int64, error) {
	args := m.Called(ctx, q, id, delta)
	return args.Get(0).(int64), args.Error(1)
}

// MockLedgerEventRepository is a mock implementation of repository.LedgerEventRepository.
type MockLedgerEventRepository struct {
	mock.Mock
}

func (m *MockLedgerEventRepository) CreateEvent(ctx context.Context, q repository.DBExecutor, event *domain.LedgerEvent) error {
	args := m.Called(ctx, q, event)
	return args.Error(0)
}

func (m *MockLedgerEventRepository) GetCreditByReference(ctx context.Context, q repository.DBExecutor, reference string) (*domain.LedgerEvent, error) {
	args := m.Called(ctx, q, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEvent), args.Error(1)
}

func (m *MockLedgerEventRepository) ListEventsByAccountID(ctx context.Context, q repository.DBExecutor, accountID int64, filter domain.EventFilter) ([]domain.LedgerEvent, int64, error) {
	args := m.Called(ctx, q, accountID, filter)
	return args.Get(0).([]domain.LedgerEvent), args.Get(1).(int64), args.Error(2)
}

// MockMessageRepository is a mock implementation of repository.MessageRepository.
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) CreateMessage(ctx context.Context, q repository.DBExecutor, message *domain.Message) error {
	args := m.Called(ctx, q, message)
	return args.Error(0)
}

func (m *MockMessageRepository) ListMessagesByAccountID(ctx context.Context, q repository.DBExecutor, accountID int64, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, q, accountID, limit)
	return args.Get(0).([]domain.Message), args.Error(1)
}

// MockDBBeginner is a mock implementation of db.DBTxBeginner.
type MockDBBeginner struct {
	mock.Mock
}

func (m *MockDBBeginner) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	args := m.Called(ctx, opts)
	return &sqlx.Tx{}, args.Error(1)
}

// MockTxController is a mock implementation of db.TxController.
// It also implements repository.DBExecutor by embedding MockDBExecutor.
type MockTxController struct {
	mock.Mock
	MockDBExecutor
}

func (m *MockTxController) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTxController) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

type storeMocks struct {
	accounts *MockAccountRepository
	events   *MockLedgerEventRepository
	messages *MockMessageRepository
	tx       *MockTxController
	executor *MockDBExecutor
}

func newTestSQLStore(beginErr error) (*SQLStore, *storeMocks) {
	m := &storeMocks{
		accounts: new(MockAccountRepository),
		events:   new(MockLedgerEventRepository),
		messages: new(MockMessageRepository),
		tx:       new(MockTxController),
		executor: new(MockDBExecutor),
	}
	s := NewSQLStore(
		new(MockDBBeginner),
		m.executor,
		m.accounts,
		m.events,
		m.messages,
		func(ctx context.Context, dbConn db.DBTxBeginner) (db.TxController, error) {
			if beginErr != nil {
				return nil, beginErr
			}
			return m.tx, nil
		},
		func(tx db.TxController) error {
			return m.tx.Commit()
		},
		func(tx db.TxController) {
			if tx != nil {
				_ = m.tx.Rollback()
			}
		},
	)
	return s, m
}

func TestApplyDebit(t *testing.T) {
	accountID := int64(1)

	t.Run("SuccessfulDebit", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)

		m.tx.On("Commit").Return(nil).Once()
		m.tx.On("Rollback").Return(nil).Maybe() // defer runs after Commit too
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(&domain.Account{ID: accountID, Balance: 10}, nil).Once()
		m.accounts.On("AddToBalance", ctx, m.tx, accountID, int64(-1)).Return(int64(9), nil).Once()
		m.events.On("CreateEvent", ctx, m.tx, mock.MatchedBy(func(e *domain.LedgerEvent) bool {
			return e.Kind == domain.EventKindDebit && e.Delta == -1 && e.BalanceAfter == 9 && e.Reference == nil
		})).Return(nil).Once()

		balance, event, err := s.ApplyDebit(ctx, accountID, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(9), balance)
		assert.Equal(t, int64(1), event.Amount())

		m.accounts.AssertExpectations(t)
		m.events.AssertExpectations(t)
		m.tx.AssertExpectations(t)
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)

		m.tx.On("Rollback").Return(nil).Once()
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(&domain.Account{ID: accountID, Balance: 0}, nil).Once()

		_, _, err := s.ApplyDebit(ctx, accountID, 1)
		assert.ErrorIs(t, err, util.ErrInsufficientBalance)

		m.accounts.AssertNotCalled(t, "AddToBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.events.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything)
		m.tx.AssertNotCalled(t, "Commit")
		m.tx.AssertExpectations(t)
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)

		m.tx.On("Rollback").Return(nil).Once()
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(nil, util.ErrNotFound).Once()

		_, _, err := s.ApplyDebit(ctx, accountID, 1)
		assert.ErrorIs(t, err, util.ErrNotFound)
		m.tx.AssertNotCalled(t, "Commit")
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		s, m := newTestSQLStore(nil)

		_, _, err := s.ApplyDebit(context.Background(), accountID, 0)
		assert.ErrorIs(t, err, util.ErrInvalidAmount)
		m.accounts.AssertNotCalled(t, "GetAccountForUpdate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("BeginFails", func(t *testing.T) {
		s, _ := newTestSQLStore(errors.New("connection refused"))

		_, _, err := s.ApplyDebit(context.Background(), accountID, 1)
		require.Error(t, err)
		assert.False(t, util.IsDomainError(err))
	})

	t.Run("CommitFails", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)

		m.tx.On("Commit").Return(errors.New("connection reset")).Once()
		m.tx.On("Rollback").Return(nil).Once()
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(&domain.Account{ID: accountID, Balance: 5}, nil).Once()
		m.accounts.On("AddToBalance", ctx, m.tx, accountID, int64(-1)).Return(int64(4), nil).Once()
		m.events.On("CreateEvent", ctx, m.tx, mock.AnythingOfType("*domain.LedgerEvent")).Return(nil).Once()

		_, _, err := s.ApplyDebit(ctx, accountID, 1)
		assert.ErrorContains(t, err, "failed to commit transaction")
		assert.False(t, util.IsDomainError(err))
	})
}

func TestApplyCredit(t *testing.T) {
	accountID := int64(1)
	reference := "r1"

	t.Run("SuccessfulCredit", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)

		m.tx.On("Commit").Return(nil).Once()
		m.tx.On("Rollback").Return(nil).Maybe()
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(&domain.Account{ID: accountID, Balance: 0}, nil).Once()
		m.events.On("GetCreditByReference", ctx, m.tx, reference).Return(nil, util.ErrNotFound).Once()
		m.accounts.On("AddToBalance", ctx, m.tx, accountID, int64(25)).Return(int64(25), nil).Once()
		m.events.On("CreateEvent", ctx, m.tx, mock.MatchedBy(func(e *domain.LedgerEvent) bool {
			return e.Kind == domain.EventKindCredit && e.Delta == 25 && e.Reference != nil && *e.Reference == reference
		})).Return(nil).Once()

		balance, event, err := s.ApplyCredit(ctx, accountID, 25, reference)
		require.NoError(t, err)
		assert.Equal(t, int64(25), balance)
		assert.Equal(t, int64(25), event.BalanceAfter)

		m.accounts.AssertExpectations(t)
		m.events.AssertExpectations(t)
	})

	t.Run("ReplayedReference", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)
		original := domain.NewCreditEvent(accountID, 25, 25, reference)
		original.ID = 7

		m.tx.On("Rollback").Return(nil).Once()
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(&domain.Account{ID: accountID, Balance: 24}, nil).Once()
		m.events.On("GetCreditByReference", ctx, m.tx, reference).Return(original, nil).Once()

		balance, event, err := s.ApplyCredit(ctx, accountID, 25, reference)
		assert.ErrorIs(t, err, util.ErrDuplicateReference)
		assert.Equal(t, int64(24), balance, "replay reports the current balance")
		assert.Equal(t, int64(7), event.ID)

		m.accounts.AssertNotCalled(t, "AddToBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.tx.AssertNotCalled(t, "Commit")
	})

	t.Run("ReferenceReusedWithDifferentAmount", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)

		m.tx.On("Rollback").Return(nil).Once()
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(&domain.Account{ID: accountID, Balance: 25}, nil).Once()
		m.events.On("GetCreditByReference", ctx, m.tx, reference).Return(domain.NewCreditEvent(accountID, 25, 25, reference), nil).Once()

		_, _, err := s.ApplyCredit(ctx, accountID, 30, reference)
		assert.ErrorIs(t, err, util.ErrConflict)
	})

	t.Run("ReferenceRacedOnInsert", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)

		m.tx.On("Rollback").Return(nil).Once()
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(&domain.Account{ID: accountID, Balance: 0}, nil).Once()
		m.events.On("GetCreditByReference", ctx, m.tx, reference).Return(nil, util.ErrNotFound).Once()
		m.accounts.On("AddToBalance", ctx, m.tx, accountID, int64(25)).Return(int64(25), nil).Once()
		m.events.On("CreateEvent", ctx, m.tx, mock.AnythingOfType("*domain.LedgerEvent")).Return(util.ErrDuplicateReference).Once()

		_, _, err := s.ApplyCredit(ctx, accountID, 25, reference)
		assert.ErrorIs(t, err, util.ErrConflict)
		m.tx.AssertNotCalled(t, "Commit")
	})

	t.Run("EmptyReference", func(t *testing.T) {
		s, _ := newTestSQLStore(nil)

		_, _, err := s.ApplyCredit(context.Background(), accountID, 25, "")
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})

	t.Run("LookupFails", func(t *testing.T) {
		ctx := context.Background()
		s, m := newTestSQLStore(nil)

		m.tx.On("Rollback").Return(nil).Once()
		m.accounts.On("GetAccountForUpdate", ctx, m.tx, accountID).Return(&domain.Account{ID: accountID, Balance: 0}, nil).Once()
		m.events.On("GetCreditByReference", ctx, m.tx, reference).Return(nil, sql.ErrConnDone).Once()

		_, _, err := s.ApplyCredit(ctx, accountID, 25, reference)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.False(t, util.IsDomainError(err))
	})
}

func TestGetBalance(t *testing.T) {
	ctx := context.Background()
	s, m := newTestSQLStore(nil)

	m.accounts.On("GetAccountByID", ctx, m.executor, int64(1)).Return(&domain.Account{ID: 1, Balance: 42}, nil).Once()
	m.accounts.On("GetAccountByID", ctx, m.executor, int64(2)).Return(nil, util.ErrNotFound).Once()

	balance, err := s.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance)

	_, err = s.GetBalance(ctx, 2)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		s, m := newTestSQLStore(nil)
		m.accounts.On("CreateAccount", ctx, m.executor, mock.MatchedBy(func(a *domain.Account) bool {
			return a.Owner == "alice" && a.Balance == 100
		})).Run(func(args mock.Arguments) {
			args.Get(2).(*domain.Account).ID = 3
		}).Return(nil).Once()

		account, err := s.CreateAccount(ctx, "alice", 100)
		require.NoError(t, err)
		assert.Equal(t, int64(3), account.ID)
	})

	t.Run("BlankOwner", func(t *testing.T) {
		s, m := newTestSQLStore(nil)
		_, err := s.CreateAccount(ctx, "  ", 100)
		assert.ErrorIs(t, err, util.ErrInvalidInput)
		m.accounts.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("OwnerTaken", func(t *testing.T) {
		s, m := newTestSQLStore(nil)
		m.accounts.On("CreateAccount", ctx, m.executor, mock.Anything).Return(util.ErrConflict).Once()
		_, err := s.CreateAccount(ctx, "alice", 100)
		assert.ErrorIs(t, err, util.ErrConflict)
	})
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	filter := domain.EventFilter{Kind: domain.EventKindCredit, Limit: 20}

	t.Run("UnknownAccount", func(t *testing.T) {
		s, m := newTestSQLStore(nil)
		m.accounts.On("GetAccountByID", ctx, m.executor, int64(9)).Return(nil, util.ErrNotFound).Once()

		_, _, err := s.ListEvents(ctx, 9, filter)
		assert.ErrorIs(t, err, util.ErrNotFound)
		m.events.AssertNotCalled(t, "ListEventsByAccountID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Page", func(t *testing.T) {
		s, m := newTestSQLStore(nil)
		m.accounts.On("GetAccountByID", ctx, m.executor, int64(1)).Return(&domain.Account{ID: 1}, nil).Once()
		page := []domain.LedgerEvent{*domain.NewCreditEvent(1, 5, 5, "a")}
		m.events.On("ListEventsByAccountID", ctx, m.executor, int64(1), filter).Return(page, int64(4), nil).Once()

		events, total, err := s.ListEvents(ctx, 1, filter)
		require.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, int64(4), total)
	})
}
