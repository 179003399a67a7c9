// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credit-ledger/internal/api/handler"
	ledgermw "credit-ledger/internal/api/middleware"
)

// Handlers groups the HTTP handlers the router dispatches to.
type Handlers struct {
	Accounts *handler.AccountHandler
	Messages *handler.MessageHandler
	// SendLimiter throttles POST /messages per account. Nil disables it.
	SendLimiter *ledgermw.RateLimiter
	// Gatherer backs /metrics. Nil omits the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter sets up and returns a new HTTP router.
func NewRouter(h Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)                       // Add a request ID to the context
	r.Use(middleware.RealIP)                          // Use the real IP address
	r.Use(middleware.Logger)                          // Log HTTP requests
	r.Use(middleware.Recoverer)                       // Recover from panics and return 500
	r.Use(middleware.Timeout(handler.DefaultTimeout)) // Set a default timeout for requests

	onError := func(w http.ResponseWriter, err error) {
		handler.RespondWithError(w, logger, err)
	}

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	// Signup needs no identity
	r.Post("/accounts", h.Accounts.CreateAccount)

	// Caller-scoped routes
	r.Group(func(r chi.Router) {
		r.Use(ledgermw.Identity(onError))

		r.Get("/balance", h.Accounts.GetBalance)
		r.Post("/recharge", h.Accounts.Recharge)
		r.Get("/ledger", h.Accounts.GetLedgerHistory)
		r.Post("/accounts/{accountID}/cache/invalidate", h.Accounts.InvalidateCache)

		r.Get("/messages", h.Messages.ListMessages)
		r.Group(func(r chi.Router) {
			if h.SendLimiter != nil {
				r.Use(h.SendLimiter.Middleware(onError))
			}
			r.Post("/messages", h.Messages.SendMessage)
		})
	})

	return r
}
