// internal/repository/message_repo.go
package repository

import (
	"context"

	"credit-ledger/internal/domain"
)

// MessageRepository defines the interface for message data operations.
type MessageRepository interface {
	CreateMessage(ctx context.Context, q DBExecutor, message *domain.Message) error
	// ListMessagesByAccountID returns messages sent or received by the account, newest first.
	ListMessagesByAccountID(ctx context.Context, q DBExecutor, accountID int64, limit int) ([]domain.Message, error)
}
