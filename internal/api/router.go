// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chatpay-wallet/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(walletHandler *handler.WalletHandler, webhookHandler *handler.WebhookHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(handler.DefaultTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Messaging channel
	r.Get("/webhook", webhookHandler.Verify)
	r.Post("/webhook", webhookHandler.Receive)

	// Operator API
	r.Route("/accounts/{handle}", func(r chi.Router) {
		r.Get("/balance", walletHandler.GetBalance)
		r.Get("/transactions", walletHandler.GetTransactionHistory)
		r.Get("/beneficiaries", walletHandler.ListBeneficiaries)
		r.Post("/activate", walletHandler.Activate)
		r.Post("/deposits", walletHandler.Deposit)
	})
	r.Post("/transfers", walletHandler.Transfer)
	r.Post("/transactions/{reference}/refund", walletHandler.Refund)

	return r
}
