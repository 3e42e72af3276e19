package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"horizon-server/src/categories"
	"horizon-server/src/config"
	"horizon-server/src/models"
	"horizon-server/src/observability"
	"horizon-server/src/transactions"
)

var tracer = otel.Tracer("horizon-server/services")

const (
	sourceAccounts     = "accounts"
	sourceInstitutions = "institutions"
	sourceAggregator   = "aggregator"
	sourceTransfers    = "transfers"
)

// BankService builds account summaries and the merged transaction view for
// linked banks.
type BankService struct {
	banks     BankStore
	transfers TransferStore
	accounts  AccountFetcher
	fetcher   TransactionFetcher
	cache     TransactionCache
	mapper    *categories.Mapper
	cfg       *config.Config
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func NewBankService(
	banks BankStore,
	transfers TransferStore,
	accounts AccountFetcher,
	fetcher TransactionFetcher,
	cache TransactionCache,
	mapper *categories.Mapper,
	cfg *config.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *BankService {
	return &BankService{
		banks:     banks,
		transfers: transfers,
		accounts:  accounts,
		fetcher:   fetcher,
		cache:     cache,
		mapper:    mapper,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// GetAccounts returns a snapshot of every bank the user linked and the sum
// of their current balances.
func (s *BankService) GetAccounts(ctx context.Context, userID int64) (*models.AccountsSummary, error) {
	ctx, span := tracer.Start(ctx, "BankService.GetAccounts")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("get_accounts", time.Since(start))
	}()

	banks, err := s.banks.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	slots := make([]*models.Account, len(banks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	for i := range banks {
		g.Go(func() error {
			acc, err := s.account(gCtx, &banks[i])
			if err != nil {
				return err
			}
			slots[i] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &models.AccountsSummary{Data: []models.Account{}}
	total := decimal.Zero
	for _, acc := range slots {
		if acc == nil {
			continue
		}
		summary.Data = append(summary.Data, *acc)
		total = total.Add(decimal.NewFromFloat(acc.CurrentBalance))
	}
	summary.TotalBanks = len(summary.Data)
	summary.TotalCurrentBalance = total.Round(2).InexactFloat64()
	return summary, nil
}

// GetAccount returns the bank's account snapshot and one page of its merged
// transaction view. The bank must belong to userID.
func (s *BankService) GetAccount(ctx context.Context, userID int64, bankID string, page int) (*models.AccountDetail, error) {
	ctx, span := tracer.Start(ctx, "BankService.GetAccount")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("bank.id", bankID))

	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("get_account", time.Since(start))
	}()

	bank, err := s.ownedBank(ctx, userID, bankID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, bank, page)
}

// TransactionHistory returns one page of the merged view for each of the
// user's banks. Banks are processed concurrently; the result keeps the order
// they were linked in.
func (s *BankService) TransactionHistory(ctx context.Context, userID int64, page int) (*models.TransactionHistory, error) {
	ctx, span := tracer.Start(ctx, "BankService.TransactionHistory")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("transaction_history", time.Since(start))
	}()

	banks, err := s.banks.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	slots := make([]*models.AccountDetail, len(banks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	for i := range banks {
		g.Go(func() error {
			d, err := s.detail(gCtx, &banks[i], page)
			if err != nil {
				return err
			}
			slots[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	history := &models.TransactionHistory{Data: make([]models.AccountDetail, 0, len(slots)), TotalBanks: len(banks)}
	for _, d := range slots {
		history.Data = append(history.Data, *d)
	}
	return history, nil
}

// CategoryBreakdown counts the bank's merged transactions per category.
func (s *BankService) CategoryBreakdown(ctx context.Context, userID int64, bankID string) ([]models.CategoryCount, error) {
	ctx, span := tracer.Start(ctx, "BankService.CategoryBreakdown")
	defer span.End()

	bank, err := s.ownedBank(ctx, userID, bankID)
	if err != nil {
		return nil, err
	}
	views, err := s.mergedView(ctx, bank)
	if err != nil {
		return nil, err
	}
	return categories.CountCategories(views), nil
}

// BankTransactions returns a page of the merged view without an ownership
// check. It backs operator tooling, not the HTTP API.
func (s *BankService) BankTransactions(ctx context.Context, bankID string, page int) (*models.TransactionPage, error) {
	if bankID == "" {
		return nil, &models.ErrValidation{Field: "bank_id", Message: "required"}
	}
	bank, err := s.banks.Get(ctx, bankID)
	if err != nil {
		return nil, err
	}
	views, err := s.mergedView(ctx, bank)
	if err != nil {
		return nil, err
	}
	p := transactions.Paginate(views, page, s.cfg.PageSize)
	return &p, nil
}

// InvalidateItem drops cached aggregator transactions for a Plaid item.
func (s *BankService) InvalidateItem(itemID string) {
	s.cache.Invalidate(itemID)
}

func (s *BankService) ownedBank(ctx context.Context, userID int64, bankID string) (*models.Bank, error) {
	if bankID == "" {
		return nil, &models.ErrValidation{Field: "bank_id", Message: "required"}
	}
	bank, err := s.banks.Get(ctx, bankID)
	if err != nil {
		return nil, err
	}
	if bank.UserID != userID {
		return nil, &models.ErrForbidden{Action: "view bank " + bankID}
	}
	return bank, nil
}

func (s *BankService) detail(ctx context.Context, bank *models.Bank, page int) (*models.AccountDetail, error) {
	var (
		acc   *models.Account
		views []models.TransactionView
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acc, err = s.account(gCtx, bank)
		return err
	})
	g.Go(func() error {
		var err error
		views, err = s.mergedView(gCtx, bank)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.AccountDetail{
		Data:            acc,
		TransactionPage: transactions.Paginate(views, page, s.cfg.PageSize),
	}, nil
}

// account returns nil without an error when the lookup failed and the
// failure policy allows degrading.
func (s *BankService) account(ctx context.Context, bank *models.Bank) (*models.Account, error) {
	acc, err := s.accounts.GetAccount(ctx, bank.AccessToken)
	if err != nil {
		return nil, s.degrade(ctx, err, sourceAccounts, bank)
	}
	acc.BankID = bank.ID
	acc.ShareableID = bank.ShareableID
	if acc.InstitutionID == "" {
		acc.InstitutionID = bank.InstitutionID
	}

	if acc.InstitutionID != "" {
		name, err := s.accounts.GetInstitutionName(ctx, acc.InstitutionID)
		if err != nil {
			if err := s.degrade(ctx, err, sourceInstitutions, bank); err != nil {
				return nil, err
			}
		}
		acc.InstitutionName = name
	}
	return acc, nil
}

// mergedView combines the bank's aggregator transactions with the transfers
// it took part in, newest first.
func (s *BankService) mergedView(ctx context.Context, bank *models.Bank) ([]models.TransactionView, error) {
	fetched, err := s.fetchTransactions(ctx, bank)
	if err != nil {
		return nil, err
	}

	transfers, err := s.transfers.ListByBank(ctx, bank.ID)
	if err != nil {
		if err := s.degrade(ctx, err, sourceTransfers, bank); err != nil {
			return nil, err
		}
		transfers = nil
	}

	return transactions.Combine(
		transactions.FromAggregator(fetched, s.mapper),
		transactions.MergeTransfers(bank.ID, transfers),
	), nil
}

func (s *BankService) fetchTransactions(ctx context.Context, bank *models.Bank) ([]models.Transaction, error) {
	gen := s.cache.Generation(bank.ItemID)
	if txns, ok := s.cache.Get(bank.ItemID); ok {
		return txns, nil
	}

	txns, err := s.fetcher.FetchAdded(ctx, bank.AccessToken)
	if err != nil {
		return nil, s.degrade(ctx, err, sourceAggregator, bank)
	}
	if !s.cache.Set(bank.ItemID, gen, txns) {
		s.logger.Debug("item invalidated during fetch, result not cached", zap.String("bank_id", bank.ID))
	}
	return txns, nil
}

// degrade applies the fetch failure policy to a failed read of one bank
// item's upstream data. It returns nil when the caller should carry on with an
// empty result. Not-found and validation errors here concern that item, not
// the requested resource, so the policy covers them too. Cancellation always
// comes back.
func (s *BankService) degrade(ctx context.Context, err error, source string, bank *models.Bank) error {
	if ctx.Err() != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("source", source),
		zap.String("bank_id", bank.ID),
		zap.Int64("user_id", bank.UserID),
		zap.Error(err),
	}

	if !s.cfg.DegradeOnFetchFailure() {
		s.logger.Error("upstream read failed", fields...)
		var (
			ext  *models.ErrExternalService
			verr *models.ErrValidation
			nf   *models.ErrNotFound
		)
		if errors.As(err, &ext) || errors.As(err, &verr) || errors.As(err, &nf) {
			return err
		}
		return &models.ErrExternalService{Service: source, Err: err}
	}

	s.logger.Warn("upstream read failed, continuing with empty result", fields...)
	s.metrics.IncrDegradedFetch(source)
	return nil
}
