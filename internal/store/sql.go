package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"credit-ledger/internal/domain"
	"credit-ledger/internal/repository"
	"credit-ledger/internal/util"
	"credit-ledger/pkg/db"
)

// SQLStore implements LedgerStore and MessageStore on top of the repositories,
// running every mutation in one database transaction that holds the
// account's row lock.
type SQLStore struct {
	dbBeginner  db.DBTxBeginner       // For starting transactions (e.g., *sqlx.DB)
	dbExecutor  repository.DBExecutor // For non-transactional reads (e.g., *sqlx.DB)
	accountRepo repository.AccountRepository
	eventRepo   repository.LedgerEventRepository
	messageRepo repository.MessageRepository
	beginTx     db.BeginTxFunc
	commitTx    db.CommitTxFunc
	rollbackTx  db.RollbackTxFunc
}

var (
	_ LedgerStore  = (*SQLStore)(nil)
	_ MessageStore = (*SQLStore)(nil)
)

// NewSQLStore creates a new SQLStore.
func NewSQLStore(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	accountRepo repository.AccountRepository,
	eventRepo repository.LedgerEventRepository,
	messageRepo repository.MessageRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
) *SQLStore {
	return &SQLStore{
		dbBeginner:  dbBeginner,
		dbExecutor:  dbExecutor,
		accountRepo: accountRepo,
		eventRepo:   eventRepo,
		messageRepo: messageRepo,
		beginTx:     beginTx,
		commitTx:    commitTx,
		rollbackTx:  rollbackTx,
	}
}

// CreateAccount inserts a new account with the starting balance.
func (s *SQLStore) CreateAccount(ctx context.Context, owner string, startingBalance int64) (*domain.Account, error) {
	if strings.TrimSpace(owner) == "" || startingBalance < 0 {
		return nil, util.ErrInvalidInput
	}
	account := domain.NewAccount(owner, startingBalance)
	if err := s.accountRepo.CreateAccount(ctx, s.dbExecutor, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// GetAccount reads an account outside any transaction.
func (s *SQLStore) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	account, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", accountID, err)
	}
	return account, nil
}

// GetBalance reads the materialized balance.
func (s *SQLStore) GetBalance(ctx context.Context, accountID int64) (int64, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// ApplyDebit subtracts amount from the account if the balance covers it.
func (s *SQLStore) ApplyDebit(ctx context.Context, accountID, amount int64) (int64, *domain.LedgerEvent, error) {
	if amount <= 0 {
		return 0, nil, util.ErrInvalidAmount
	}

	txController, txExecutor, err := s.begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("apply debit: %w", err)
	}
	defer s.rollbackTx(txController)

	account, err := s.accountRepo.GetAccountForUpdate(ctx, txExecutor, accountID)
	if err != nil {
		return 0, nil, fmt.Errorf("apply debit: failed to lock account %d: %w", accountID, err)
	}
	if account.Balance < amount {
		return 0, nil, fmt.Errorf("apply debit: account %d holds %d, needs %d: %w", accountID, account.Balance, amount, util.ErrInsufficientBalance)
	}

	newBalance, err := s.accountRepo.AddToBalance(ctx, txExecutor, accountID, -amount)
	if err != nil {
		return 0, nil, fmt.Errorf("apply debit: %w", err)
	}

	event := domain.NewDebitEvent(accountID, amount, newBalance)
	if err := s.eventRepo.CreateEvent(ctx, txExecutor, event); err != nil {
		return 0, nil, fmt.Errorf("apply debit: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return 0, nil, fmt.Errorf("apply debit: failed to commit transaction: %w", err)
	}
	return newBalance, event, nil
}

// ApplyCredit adds amount to the account unless reference is already recorded.
func (s *SQLStore) ApplyCredit(ctx context.Context, accountID, amount int64, reference string) (int64, *domain.LedgerEvent, error) {
	if amount <= 0 {
		return 0, nil, util.ErrInvalidAmount
	}
	if reference == "" {
		return 0, nil, fmt.Errorf("apply credit: empty reference: %w", util.ErrInvalidInput)
	}

	txController, txExecutor, err := s.begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("apply credit: %w", err)
	}
	defer s.rollbackTx(txController)

	// The row lock also orders concurrent replays of one reference: the
	// second waits here and then sees the first one's committed event.
	account, err := s.accountRepo.GetAccountForUpdate(ctx, txExecutor, accountID)
	if err != nil {
		return 0, nil, fmt.Errorf("apply credit: failed to lock account %d: %w", accountID, err)
	}

	existing, err := s.eventRepo.GetCreditByReference(ctx, txExecutor, reference)
	switch {
	case err == nil:
		if existing.AccountID != accountID || existing.Amount() != amount {
			return 0, nil, fmt.Errorf("apply credit: reference %q recorded with different parameters: %w", reference, util.ErrConflict)
		}
		return account.Balance, existing, util.ErrDuplicateReference
	case !errors.Is(err, util.ErrNotFound):
		return 0, nil, fmt.Errorf("apply credit: %w", err)
	}

	newBalance, err := s.accountRepo.AddToBalance(ctx, txExecutor, accountID, amount)
	if err != nil {
		return 0, nil, fmt.Errorf("apply credit: %w", err)
	}

	event := domain.NewCreditEvent(accountID, amount, newBalance, reference)
	if err := s.eventRepo.CreateEvent(ctx, txExecutor, event); err != nil {
		if errors.Is(err, util.ErrDuplicateReference) {
			// Only a credit to another account can race past the lock above.
			return 0, nil, fmt.Errorf("apply credit: reference %q taken concurrently: %w", reference, util.ErrConflict)
		}
		return 0, nil, fmt.Errorf("apply credit: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return 0, nil, fmt.Errorf("apply credit: failed to commit transaction: %w", err)
	}
	return newBalance, event, nil
}

// ListEvents returns the account's ledger history.
func (s *SQLStore) ListEvents(ctx context.Context, accountID int64, filter domain.EventFilter) ([]domain.LedgerEvent, int64, error) {
	if _, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, accountID); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	events, total, err := s.eventRepo.ListEventsByAccountID(ctx, s.dbExecutor, accountID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}

// CreateMessage inserts a message.
func (s *SQLStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	return s.messageRepo.CreateMessage(ctx, s.dbExecutor, message)
}

// ListMessages returns the account's newest messages.
func (s *SQLStore) ListMessages(ctx context.Context, accountID int64, limit int) ([]domain.Message, error) {
	return s.messageRepo.ListMessagesByAccountID(ctx, s.dbExecutor, accountID, limit)
}

func (s *SQLStore) begin(ctx context.Context) (db.TxController, repository.DBExecutor, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		s.rollbackTx(txController)
		return nil, nil, fmt.Errorf("transaction controller does not implement DBExecutor")
	}
	return txController, txExecutor, nil
}
