package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"horizon-server/src/config"
	"horizon-server/src/handlers"
	"horizon-server/src/middleware"
	"horizon-server/src/observability"
)

type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Auth      handlers.AuthAPI
	Banks     handlers.BankAPI
	Link      handlers.LinkAPI
	Transfers handlers.TransferAPI
	Webhooks  handlers.WebhookVerifier
}

func NewRouter(d Deps) *chi.Mux {
	cfg, logger := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.ReadOnlyMiddleware(cfg.ReadOnly))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(2*cfg.HTTPTimeout + 5*time.Second))

		r.Post("/login", handlers.Login(d.Auth, logger))
		r.Post("/register", handlers.Register(d.Auth, logger))
		r.Post("/plaid/webhook", handlers.PlaidWebhook(d.Webhooks, d.Banks, logger))

		// Protected routes
		r.With(middleware.JWTAuthMiddleware(cfg.JWTSecret)).Group(func(r chi.Router) {
			// User
			r.Get("/user", handlers.GetUser(d.Auth, logger))

			// Plaid
			r.Post("/plaid/create-link-token", handlers.CreateLinkToken(d.Link, logger))
			r.Post("/plaid/exchange-public-token", handlers.ExchangePublicToken(d.Link, logger))

			// Banks
			r.Get("/banks", handlers.GetAccounts(d.Banks, logger))
			r.Get("/banks/{bank_id}", handlers.GetAccount(d.Banks, logger))
			r.Get("/banks/{bank_id}/categories", handlers.GetCategories(d.Banks, logger))
			r.Get("/transaction-history", handlers.GetTransactionHistory(d.Banks, logger))

			// Transfers
			r.Post("/transfers", handlers.CreateTransfer(d.Transfers, logger))
		})
	})

	return r
}
