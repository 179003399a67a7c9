// internal/api/handler/respond.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"credit-ledger/internal/util"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 15 * time.Second

// Helper function to send JSON responses.
func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func respondWithError(w http.ResponseWriter, logger *slog.Logger, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case util.IsError(err, util.ErrInvalidAmount):
		statusCode = http.StatusBadRequest
		message = util.ErrInvalidAmount.Error()
	case util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		message = util.ErrInvalidInput.Error()
	case util.IsError(err, util.ErrUnauthenticated):
		statusCode = http.StatusUnauthorized
		message = util.ErrUnauthenticated.Error()
	case util.IsError(err, util.ErrForbidden):
		statusCode = http.StatusForbidden
		message = util.ErrForbidden.Error()
	case util.IsError(err, util.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "Resource not found"
	case util.IsError(err, util.ErrConflict):
		statusCode = http.StatusConflict
		message = "Resource already exists or reference reused"
	case util.IsError(err, util.ErrInsufficientBalance):
		statusCode = http.StatusPaymentRequired // 402 Payment Required
		message = "Insufficient credits"
	case util.IsError(err, util.ErrRateLimited):
		statusCode = http.StatusTooManyRequests
		message = "Too many requests"
	case util.IsError(err, util.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		statusCode = http.StatusServiceUnavailable
		message = "Service temporarily unavailable, please retry"
		logger.Error("Ledger store unavailable", "error", err)
	default:
		logger.Error("Unhandled service error", "error", err)
	}

	respondWithJSON(w, logger, statusCode, map[string]string{"error": message})
}

// RespondWithError lets middleware share the handler error mapping.
func RespondWithError(w http.ResponseWriter, logger *slog.Logger, err error) {
	respondWithError(w, logger, err)
}

// queryInt parses a non-negative integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
