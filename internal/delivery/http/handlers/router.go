package handlers

import (
	"log/slog"
	"net/http"

	ledgermw "github.com/LavaJover/shvark-ledger-service/internal/delivery/http/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the webhook and command routes. metrics may be nil.
func NewRouter(h *LedgerHandler, metrics http.Handler, observer ledgermw.RequestObserver, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(ledgermw.NewStructuredLogger(logger, observer))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Post("/webhooks/{provider}", h.Webhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payins", h.Payin)
		r.Post("/payouts", h.Payout)
		r.Post("/payouts/{id}/reject", h.RejectPayout)
		r.Post("/payouts/{id}/complete", h.CompletePayout)
		r.Get("/transactions/{id}", h.GetTransaction)
		r.Post("/transactions/{id}/user-response", h.SetUserResponse)
	})
	return r
}
