// internal/repository/postgres/message_pg.go
package postgres

import (
	"context"
	"fmt"

	"credit-ledger/internal/domain"
	"credit-ledger/internal/repository"
)

// MessageRepository implements repository.MessageRepository for PostgreSQL.
type MessageRepository struct{}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository() repository.MessageRepository {
	return &MessageRepository{}
}

// CreateMessage inserts a new message using the provided DBExecutor.
func (r *MessageRepository) CreateMessage(ctx context.Context, q repository.DBExecutor, message *domain.Message) error {
	query := `INSERT INTO messages (sender_id, recipient_id, content, status, debit_event_id, created_at)
              VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		message.SenderID,
		message.RecipientID,
		message.Content,
		message.Status,
		message.DebitEventID,
		message.CreatedAt,
	).Scan(&message.ID)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessagesByAccountID retrieves the newest messages an account sent or received.
func (r *MessageRepository) ListMessagesByAccountID(ctx context.Context, q repository.DBExecutor, accountID int64, limit int) ([]domain.Message, error) {
	messages := []domain.Message{}
	query := `
		SELECT id, sender_id, recipient_id, content, status, debit_event_id, created_at
		FROM messages
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	if err := q.SelectContext(ctx, &messages, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch messages for account %d: %w", accountID, err)
	}
	return messages, nil
}
