// internal/api/handler/message.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"credit-ledger/internal/api/middleware"
	"credit-ledger/internal/service"
	"credit-ledger/internal/util"
)

// MessageHandler handles message requests.
type MessageHandler struct {
	service service.MessageService
	logger  *slog.Logger
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(svc service.MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  logger,
	}
}

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Content     string `json:"content"`
}

// SendMessage charges one credit and stores the message.
// POST /messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID := middleware.AccountID(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	message, balance, err := h.service.Send(r.Context(), senderID, req.RecipientID, req.Content)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusCreated, map[string]interface{}{
		"message":       message,
		"credits_spent": service.MessageCost,
		"new_balance":   balance,
	})
}

// ListMessages returns messages the caller sent or received.
// GET /messages?limit=50
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())
	limit := queryInt(r, "limit", service.DefaultMessageListLimit)

	messages, err := h.service.List(r.Context(), accountID, limit)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"data":  messages,
		"limit": limit,
	})
}
