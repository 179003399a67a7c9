// internal/api/handler/account.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"credit-ledger/internal/api/middleware"
	"credit-ledger/internal/api/types"
	"credit-ledger/internal/domain"
	"credit-ledger/internal/service"
	"credit-ledger/internal/util"
)

// DefaultHistoryLimit is the page size of GetLedgerHistory.
const DefaultHistoryLimit = 20

// IdempotencyKeyHeader may carry the recharge reference.
const IdempotencyKeyHeader = "Idempotency-Key"

// AccountHandler handles account, balance and recharge requests.
type AccountHandler struct {
	coordinator service.BalanceCoordinator
	logger      *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(coordinator service.BalanceCoordinator, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// CreateAccountRequest represents the request body for account creation.
type CreateAccountRequest struct {
	Owner string `json:"owner"`
}

// CreateAccount opens an account with the starting balance.
// POST /accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Owner) == "" {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}

	account, err := h.coordinator.CreateAccount(r.Context(), req.Owner)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusCreated, map[string]interface{}{
		"account_id": account.ID,
		"owner":      account.Owner,
		"balance":    account.Balance,
		"created_at": account.CreatedAt,
	})
}

// GetBalance returns the caller's balance.
// GET /balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())

	balance, err := h.coordinator.ReadBalance(r.Context(), accountID)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"credits":    balance,
	})
}

// RechargeRequest represents the request body for recharge.
type RechargeRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// Recharge adds credits to the caller's balance. The reference comes from
// the body, else the Idempotency-Key header, else a fresh transaction id.
// POST /recharge
func (h *AccountHandler) Recharge(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())

	var req RechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}
	if req.Amount <= 0 {
		respondWithError(w, h.logger, util.ErrInvalidAmount)
		return
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}
	if reference == "" {
		reference = uuid.NewString()
	}

	result, err := h.coordinator.Recharge(r.Context(), accountID, req.Amount, reference)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"message":        "Recharge successful",
		"account_id":     accountID,
		"amount":         req.Amount,
		"transaction_id": reference,
		"event_id":       result.Event.ID,
		"replayed":       result.Replayed,
		"new_balance":    result.Balance,
	})
}

// GetLedgerHistory returns the caller's ledger events.
// GET /ledger?kind=credit&limit=20&offset=0
func (h *AccountHandler) GetLedgerHistory(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())

	limit := queryInt(r, "limit", DefaultHistoryLimit)
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	offset := queryInt(r, "offset", 0)
	filter := domain.EventFilter{
		Kind:   domain.EventKind(r.URL.Query().Get("kind")),
		Limit:  limit,
		Offset: offset,
	}

	events, total, err := h.coordinator.History(r.Context(), accountID, filter)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, types.PaginatedResponse[domain.LedgerEvent]{
		Data:       events,
		Limit:      limit,
		Offset:     offset,
		TotalCount: total,
	})
}

// InvalidateCache drops the caller's cached balance. Callers may only
// invalidate their own account.
// POST /accounts/{accountID}/cache/invalidate
func (h *AccountHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil || accountID <= 0 {
		respondWithError(w, h.logger, util.ErrInvalidInput)
		return
	}
	if accountID != middleware.AccountID(r.Context()) {
		respondWithError(w, h.logger, util.ErrForbidden)
		return
	}

	h.coordinator.Invalidate(r.Context(), accountID)
	w.WriteHeader(http.StatusNoContent)
}
