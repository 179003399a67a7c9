// internal/repository/postgres/ledger_event_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"credit-ledger/internal/domain"
	"credit-ledger/internal/repository"
	"credit-ledger/internal/util"
)

// LedgerEventRepository implements repository.LedgerEventRepository for PostgreSQL.
type LedgerEventRepository struct{}

// NewLedgerEventRepository creates a new LedgerEventRepository.
func NewLedgerEventRepository() repository.LedgerEventRepository {
	return &LedgerEventRepository{}
}

const eventColumns = `id, account_id, delta, kind, reference, balance_after, created_at`

// CreateEvent appends an event using the provided DBExecutor.
func (r *LedgerEventRepository) CreateEvent(ctx context.Context, q repository.DBExecutor, event *domain.LedgerEvent) error {
	query := `INSERT INTO ledger_events (account_id, delta, kind, reference, balance_after, created_at)
              VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		event.AccountID,
		event.Delta,
		event.Kind,
		event.Reference,
		event.BalanceAfter,
		event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		if isUniqueViolation(err, constraintCreditReference) {
			return util.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create ledger event: %w", err)
	}
	return nil
}

// GetCreditByReference retrieves the credit event recorded under reference.
func (r *LedgerEventRepository) GetCreditByReference(ctx context.Context, q repository.DBExecutor, reference string) (*domain.LedgerEvent, error) {
	var event domain.LedgerEvent
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE reference = $1 AND kind = 'credit'`
	if err := q.GetContext(ctx, &event, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credit by reference %q: %w", reference, err)
	}
	return &event, nil
}

// ListEventsByAccountID retrieves a paginated list of events for an account.
// It performs two queries: one for the data and one for the total count.
func (r *LedgerEventRepository) ListEventsByAccountID(ctx context.Context, q repository.DBExecutor, accountID int64, filter domain.EventFilter) ([]domain.LedgerEvent, int64, error) {
	events := []domain.LedgerEvent{}

	// An empty kind matches every event.
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE account_id = $1 AND ($2::text = '' OR kind = $2::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`
	if err := q.SelectContext(ctx, &events, query, accountID, string(filter.Kind), filter.Limit, filter.Offset); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch ledger events for account %d: %w", accountID, err)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM ledger_events WHERE account_id = $1 AND ($2::text = '' OR kind = $2::text)`
	if err := q.GetContext(ctx, &total, countQuery, accountID, string(filter.Kind)); err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger events for account %d: %w", accountID, err)
	}

	return events, total, nil
}
