// Package middleware holds the HTTP middleware specific to the ledger API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"credit-ledger/internal/util"
)

// AccountIDHeader carries the caller's account id. Authentication is handled
// upstream; this service trusts the header.
const AccountIDHeader = "X-Account-ID"

type contextKey struct{}

// WithAccountID returns a copy of ctx carrying accountID.
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, accountID)
}

// AccountID returns the caller's account id, or 0 if Identity did not run.
func AccountID(ctx context.Context) int64 {
	id, _ := ctx.Value(contextKey{}).(int64)
	return id
}

// Identity resolves the caller from the X-Account-ID header. Requests
// without a valid id are rejected with 401.
func Identity(onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(AccountIDHeader))
			id, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || id <= 0 {
				slog.Debug("rejecting request without account id", "path", r.URL.Path)
				onError(w, util.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), id)))
		})
	}
}
