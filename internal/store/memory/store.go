// Package memory provides an in-process LedgerStore. Mutations of one account
// are serialized by that account's mutex; different accounts proceed in
// parallel.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"credit-ledger/internal/domain"
	"credit-ledger/internal/store"
	"credit-ledger/internal/util"
)

type accountEntry struct {
	mu      sync.Mutex
	account domain.Account
}

// Store is a LedgerStore and MessageStore held in memory.
type Store struct {
	mu       sync.RWMutex // protects accounts, owners and nextAccountID
	accounts map[int64]*accountEntry
	owners   map[string]int64

	nextAccountID int64

	// Lock order: accountEntry.mu before logMu.
	logMu       sync.Mutex
	events      []domain.LedgerEvent
	credits     map[string]int // reference -> index in events
	messages    []domain.Message
	nextEventID int64
}

var (
	_ store.LedgerStore  = (*Store)(nil)
	_ store.MessageStore = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[int64]*accountEntry),
		owners:   make(map[string]int64),
		credits:  make(map[string]int),
	}
}

func (s *Store) CreateAccount(_ context.Context, owner string, startingBalance int64) (*domain.Account, error) {
	if strings.TrimSpace(owner) == "" || startingBalance < 0 {
		return nil, util.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.owners[owner]; exists {
		return nil, fmt.Errorf("account owner %q: %w", owner, util.ErrConflict)
	}
	s.nextAccountID++
	account := domain.NewAccount(owner, startingBalance)
	account.ID = s.nextAccountID
	s.accounts[account.ID] = &accountEntry{account: *account}
	s.owners[owner] = account.ID
	return account, nil
}

func (s *Store) GetAccount(_ context.Context, accountID int64) (*domain.Account, error) {
	entry, err := s.entry(accountID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	account := entry.account
	entry.mu.Unlock()
	return &account, nil
}

func (s *Store) GetBalance(ctx context.Context, accountID int64) (int64, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *Store) ApplyDebit(ctx context.Context, accountID, amount int64) (int64, *domain.LedgerEvent, error) {
	if amount <= 0 {
		return 0, nil, util.ErrInvalidAmount
	}
	entry, err := s.entry(accountID)
	if err != nil {
		return 0, nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if entry.account.Balance < amount {
		return 0, nil, fmt.Errorf("account %d holds %d, needs %d: %w", accountID, entry.account.Balance, amount, util.ErrInsufficientBalance)
	}

	entry.account.Balance -= amount
	entry.account.UpdatedAt = time.Now().UTC()
	event := domain.NewDebitEvent(accountID, amount, entry.account.Balance)

	s.logMu.Lock()
	s.appendLocked(event)
	s.logMu.Unlock()

	return entry.account.Balance, event, nil
}

func (s *Store) ApplyCredit(ctx context.Context, accountID, amount int64, reference string) (int64, *domain.LedgerEvent, error) {
	if amount <= 0 {
		return 0, nil, util.ErrInvalidAmount
	}
	if reference == "" {
		return 0, nil, fmt.Errorf("empty reference: %w", util.ErrInvalidInput)
	}
	entry, err := s.entry(accountID)
	if err != nil {
		return 0, nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	if idx, ok := s.credits[reference]; ok {
		existing := s.events[idx]
		if existing.AccountID != accountID || existing.Amount() != amount {
			return 0, nil, fmt.Errorf("reference %q recorded with different parameters: %w", reference, util.ErrConflict)
		}
		return entry.account.Balance, &existing, util.ErrDuplicateReference
	}

	entry.account.Balance += amount
	entry.account.UpdatedAt = time.Now().UTC()
	event := domain.NewCreditEvent(accountID, amount, entry.account.Balance, reference)
	s.credits[reference] = s.appendLocked(event)

	return entry.account.Balance, event, nil
}

func (s *Store) ListEvents(_ context.Context, accountID int64, filter domain.EventFilter) ([]domain.LedgerEvent, int64, error) {
	if _, err := s.entry(accountID); err != nil {
		return nil, 0, err
	}

	s.logMu.Lock()
	matched := make([]domain.LedgerEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if e.AccountID == accountID && (filter.Kind == "" || e.Kind == filter.Kind) {
			matched = append(matched, e)
		}
	}
	s.logMu.Unlock()

	return page(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func (s *Store) CreateMessage(_ context.Context, message *domain.Message) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	message.ID = int64(len(s.messages) + 1)
	s.messages = append(s.messages, *message)
	return nil
}

func (s *Store) ListMessages(_ context.Context, accountID int64, limit int) ([]domain.Message, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	result := make([]domain.Message, 0)
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.SenderID == accountID || m.RecipientID == accountID {
			result = append(result, m)
		}
	}
	// Messages are appended in creation order; keep newest first on ties.
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return page(result, limit, 0), nil
}

func (s *Store) entry(accountID int64) (*accountEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.accounts[accountID]
	if !ok {
		return nil, util.ErrNotFound
	}
	return entry, nil
}

// appendLocked assigns the event an id and appends it. Caller holds logMu.
func (s *Store) appendLocked(event *domain.LedgerEvent) int {
	s.nextEventID++
	event.ID = s.nextEventID
	s.events = append(s.events, *event)
	return len(s.events) - 1
}

func page[T any](items []T, limit, offset int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
