// internal/service/messaging.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"credit-ledger/internal/domain"
	"credit-ledger/internal/store"
	"credit-ledger/internal/util"
)

// MessageCost is the number of credits one message costs.
const MessageCost = 1

// DefaultMessageListLimit caps ListMessages when the caller gives no limit.
const DefaultMessageListLimit = 50

// MessageService sends paid messages and lists an account's messages.
type MessageService interface {
	Send(ctx context.Context, senderID, recipientID int64, content string) (*domain.Message, int64, error)
	List(ctx context.Context, accountID int64, limit int) ([]domain.Message, error)
}

type messageService struct {
	coordinator BalanceCoordinator
	accounts    store.LedgerStore
	messages    store.MessageStore
	timeout     time.Duration
	logger      *slog.Logger
}

// NewMessageService creates a new MessageService. storeTimeout bounds each
// store call; zero uses DefaultStoreTimeout.
func NewMessageService(coordinator BalanceCoordinator, accounts store.LedgerStore, messages store.MessageStore, storeTimeout time.Duration, logger *slog.Logger) MessageService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &messageService{
		coordinator: coordinator,
		accounts:    accounts,
		messages:    messages,
		timeout:     storeTimeout,
		logger:      logger,
	}
}

// Send charges the sender MessageCost and stores the message. It returns the
// message and the sender's new balance. With insufficient credits nothing is
// written. If storing the message fails the charge is refunded.
func (s *messageService) Send(ctx context.Context, senderID, recipientID int64, content string) (*domain.Message, int64, error) {
	if strings.TrimSpace(content) == "" || recipientID <= 0 {
		return nil, 0, util.ErrInvalidInput
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err := s.accounts.GetAccount(lookupCtx, recipientID)
	cancel()
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, 0, fmt.Errorf("send message: recipient %d: %w", recipientID, util.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("send message: %w: %w", util.ErrStoreUnavailable, err)
	}

	charge, err := s.coordinator.Spend(ctx, senderID, MessageCost)
	if err != nil {
		return nil, 0, fmt.Errorf("send message: %w", err)
	}

	message := domain.NewMessage(senderID, recipientID, content, charge.Event.ID)
	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.messages.CreateMessage(writeCtx, message); err != nil {
		s.refund(ctx, senderID, charge)
		return nil, 0, fmt.Errorf("send message: %w: %w", util.ErrStoreUnavailable, err)
	}

	return message, charge.Balance, nil
}

// refund returns the credit taken for a message that could not be stored.
// The reference is derived from the debit so retries cannot double-refund.
func (s *messageService) refund(ctx context.Context, senderID int64, charge *Mutation) {
	reference := "refund:" + strconv.FormatInt(charge.Event.ID, 10)
	if _, err := s.coordinator.Recharge(context.WithoutCancel(ctx), senderID, MessageCost, reference); err != nil {
		s.logger.Error("Failed to refund message charge", "account_id", senderID, "reference", reference, "error", err)
		return
	}
	s.logger.Info("Refunded message charge", "account_id", senderID, "reference", reference)
}

// List returns the account's newest messages.
func (s *messageService) List(ctx context.Context, accountID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageListLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	messages, err := s.messages.ListMessages(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w: %w", util.ErrStoreUnavailable, err)
	}
	return messages, nil
}
