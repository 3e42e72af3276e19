package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"horizon-server/src/api"
	"horizon-server/src/categories"
	"horizon-server/src/config"
	"horizon-server/src/db"
	dbsql "horizon-server/src/db/sql"
	"horizon-server/src/observability"
	"horizon-server/src/payments"
	"horizon-server/src/plaid"
	"horizon-server/src/resilience"
	"horizon-server/src/services"
	"horizon-server/src/transactions"
	"horizon-server/src/util"
)

// app owns every long-lived dependency of the process.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	pool    *pgxpool.Pool
	cache   *db.TransactionCache

	auth      *services.AuthService
	banks     *services.BankService
	link      *services.LinkService
	transfers *services.TransferService
	webhooks  *util.WebhookVerifier

	shutdownTracer func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	shutdown, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, "horizon-server")
	if err != nil {
		return err
	}
	a.shutdownTracer = shutdown

	a.pool, err = db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("DB connection failed: %w", err)
	}

	a.cache, err = db.NewTransactionCache(cfg.CacheTTL, a.metrics)
	if err != nil {
		return err
	}

	var overrides map[string]string
	if cfg.CategoryMappingsFile != "" {
		if overrides, err = categories.LoadOverrides(cfg.CategoryMappingsFile); err != nil {
			return err
		}
	}
	mapper := categories.NewMapper(overrides)

	plaidClient, err := plaid.NewClient(cfg, a.metrics)
	if err != nil {
		return err
	}

	paymentsClient := payments.NewClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		cfg.PaymentsBaseURL,
		cfg.PaymentsKey,
		cfg.PaymentsSecret,
		resilience.Config{MaxRetries: cfg.MaxRetries, InitialBackoff: cfg.InitialBackoff},
		a.metrics,
		a.logger,
	)

	users := dbsql.NewUserStore(a.pool)
	banks := dbsql.NewBankStore(a.pool)
	transfers := dbsql.NewTransferStore(a.pool)
	fetcher := transactions.NewFetcher(plaidClient, a.metrics)

	a.auth = services.NewAuthService(users, paymentsClient, cfg.JWTSecret, cfg.JWTTTL, a.logger)
	a.banks = services.NewBankService(banks, transfers, plaidClient, fetcher, a.cache, mapper, cfg, a.metrics, a.logger)
	a.link = services.NewLinkService(users, banks, plaidClient, paymentsClient, a.cache, a.logger)
	a.transfers = services.NewTransferService(banks, transfers, paymentsClient, a.logger)
	a.webhooks = util.NewWebhookVerifier(plaidClient)
	return nil
}

func (a *app) router() http.Handler {
	return api.NewRouter(api.Deps{
		Config:    a.cfg,
		Logger:    a.logger,
		Metrics:   a.metrics,
		Auth:      a.auth,
		Banks:     a.banks,
		Link:      a.link,
		Transfers: a.transfers,
		Webhooks:  a.webhooks,
	})
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(context.Background()); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
