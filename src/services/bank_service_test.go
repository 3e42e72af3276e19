package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"horizon-server/src/categories"
	"horizon-server/src/config"
	"horizon-server/src/models"
	"horizon-server/src/observability"
	"horizon-server/src/services"
)

func date(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

type bankFixture struct {
	banks     *fakeBanks
	transfers *fakeTransfers
	agg       *fakeAggregator
	cache     *mapCache
	cfg       *config.Config
}

func newBankFixture() *bankFixture {
	agg := newFakeAggregator()
	agg.accounts["token-1"] = &models.Account{ID: "acc-1", Name: "Checking", CurrentBalance: 0.1, InstitutionID: "ins_1"}
	agg.accounts["token-2"] = &models.Account{ID: "acc-2", Name: "Savings", CurrentBalance: 0.2, InstitutionID: "ins_2"}
	agg.institutions["ins_1"] = "First Platypus Bank"
	agg.institutions["ins_2"] = "Tartan Bank"
	agg.txns["token-1"] = []models.Transaction{
		{ID: "A", Name: "Coffee", Amount: 4.5, Date: date(3), PrimaryCategory: strPtr("FOOD_AND_DRINK")},
		{ID: "B", Name: "Salary", Amount: -2500, Date: date(1), PrimaryCategory: strPtr("INCOME")},
	}
	agg.txns["token-2"] = []models.Transaction{
		{ID: "C", Name: "Rent", Amount: 1200, Date: date(5), PrimaryCategory: strPtr("RENT_AND_UTILITIES")},
	}

	return &bankFixture{
		banks: &fakeBanks{banks: []models.Bank{
			{ID: "item1", UserID: 1, ItemID: "plaid-item-1", AccountID: "acc-1", AccessToken: "token-1", ShareableID: "c2hhcmUx"},
			{ID: "item2", UserID: 1, ItemID: "plaid-item-2", AccountID: "acc-2", AccessToken: "token-2"},
			{ID: "item3", UserID: 2, ItemID: "plaid-item-3", AccountID: "acc-3", AccessToken: "token-3"},
		}},
		transfers: &fakeTransfers{items: []models.Transfer{
			{ID: "T1", Name: "Split rent", Amount: 25, Channel: "online", Category: "Transfer",
				SenderBankID: "item1", ReceiverBankID: "item2", CreatedAt: date(2)},
		}},
		agg:   agg,
		cache: newMapCache(),
		cfg: &config.Config{
			FetchFailurePolicy: config.FailurePolicyDegrade,
			MaxConcurrency:     2,
			PageSize:           10,
		},
	}
}

func (f *bankFixture) service() *services.BankService {
	return services.NewBankService(
		f.banks, f.transfers, f.agg, f.agg, f.cache,
		categories.NewMapper(nil), f.cfg, observability.NewMetrics(), zap.NewNop(),
	)
}

func viewIDs(views []models.TransactionView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func TestGetAccountMergesAndSorts(t *testing.T) {
	f := newBankFixture()

	detail, err := f.service().GetAccount(context.Background(), 1, "item1", 1)
	require.NoError(t, err)

	require.NotNil(t, detail.Data)
	assert.Equal(t, "acc-1", detail.Data.ID)
	assert.Equal(t, "item1", detail.Data.BankID)
	assert.Equal(t, "c2hhcmUx", detail.Data.ShareableID)
	assert.Equal(t, "First Platypus Bank", detail.Data.InstitutionName)

	assert.Equal(t, []string{"A", "T1", "B"}, viewIDs(detail.Transactions))
	assert.Equal(t, "Food And Drink", detail.Transactions[0].Category)
	assert.Equal(t, models.DirectionDebit, detail.Transactions[1].Direction)
	assert.Equal(t, "Income", detail.Transactions[2].Category)
	assert.Equal(t, 3, detail.Total)
	assert.Equal(t, 1, detail.TotalPages)
}

func TestGetAccountTransferIsCreditForReceiver(t *testing.T) {
	f := newBankFixture()

	detail, err := f.service().GetAccount(context.Background(), 1, "item2", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "T1"}, viewIDs(detail.Transactions))
	assert.Equal(t, models.DirectionCredit, detail.Transactions[1].Direction)
}

func TestGetAccountChecksOwnership(t *testing.T) {
	f := newBankFixture()

	_, err := f.service().GetAccount(context.Background(), 1, "item3", 1)
	var forbidden *models.ErrForbidden
	require.ErrorAs(t, err, &forbidden)
	assert.Zero(t, f.agg.fetches["token-3"])
}

func TestGetAccountUnknownBank(t *testing.T) {
	f := newBankFixture()

	_, err := f.service().GetAccount(context.Background(), 1, "nope", 1)
	var nf *models.ErrNotFound
	require.ErrorAs(t, err, &nf)

	_, err = f.service().GetAccount(context.Background(), 1, "", 1)
	var verr *models.ErrValidation
	require.ErrorAs(t, err, &verr)
}

func TestGetAccountUsesCache(t *testing.T) {
	f := newBankFixture()
	svc := f.service()

	_, err := svc.GetAccount(context.Background(), 1, "item1", 1)
	require.NoError(t, err)
	_, err = svc.GetAccount(context.Background(), 1, "item1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, f.agg.fetches["token-1"])

	svc.InvalidateItem("plaid-item-1")
	_, err = svc.GetAccount(context.Background(), 1, "item1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.agg.fetches["token-1"])
}

func TestFetchFailurePolicy(t *testing.T) {
	upstream := &models.ErrExternalService{Service: "plaid", Err: errors.New("ITEM_LOGIN_REQUIRED")}

	t.Run("degrade keeps transfers", func(t *testing.T) {
		f := newBankFixture()
		f.agg.txnErr["token-1"] = upstream

		detail, err := f.service().GetAccount(context.Background(), 1, "item1", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"T1"}, viewIDs(detail.Transactions))

		_, cached := f.cache.Get("plaid-item-1")
		assert.False(t, cached, "degraded results must not be cached")
	})

	t.Run("propagate fails the request", func(t *testing.T) {
		f := newBankFixture()
		f.cfg.FetchFailurePolicy = config.FailurePolicyPropagate
		f.agg.txnErr["token-1"] = upstream

		_, err := f.service().GetAccount(context.Background(), 1, "item1", 1)
		var ext *models.ErrExternalService
		require.ErrorAs(t, err, &ext)
		assert.Equal(t, "plaid", ext.Service)
	})

	t.Run("degrade covers transfer reads", func(t *testing.T) {
		f := newBankFixture()
		f.transfers.err = errors.New("connection refused")

		detail, err := f.service().GetAccount(context.Background(), 1, "item1", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, viewIDs(detail.Transactions))
	})

	t.Run("propagate wraps transfer read failures", func(t *testing.T) {
		f := newBankFixture()
		f.cfg.FetchFailurePolicy = config.FailurePolicyPropagate
		f.transfers.err = errors.New("connection refused")

		_, err := f.service().GetAccount(context.Background(), 1, "item1", 1)
		var ext *models.ErrExternalService
		require.ErrorAs(t, err, &ext)
		assert.Equal(t, "transfers", ext.Service)
	})

	t.Run("degrade covers an item's validation errors", func(t *testing.T) {
		f := newBankFixture()
		f.banks.banks[0].AccessToken = ""
		f.agg.accounts[""] = f.agg.accounts["token-1"]

		detail, err := f.service().GetAccount(context.Background(), 1, "item1", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"T1"}, viewIDs(detail.Transactions))
	})

	t.Run("propagate keeps typed errors", func(t *testing.T) {
		f := newBankFixture()
		f.cfg.FetchFailurePolicy = config.FailurePolicyPropagate
		f.banks.banks[0].AccessToken = ""
		f.agg.accounts[""] = f.agg.accounts["token-1"]

		_, err := f.service().GetAccount(context.Background(), 1, "item1", 1)
		var verr *models.ErrValidation
		require.ErrorAs(t, err, &verr)
	})

	t.Run("cancellation always propagates", func(t *testing.T) {
		f := newBankFixture()
		ctx, cancel := context.WithCancel(context.Background())
		f.agg.txnErr["token-1"] = context.Canceled
		cancel()

		_, err := f.service().GetAccount(ctx, 1, "item1", 1)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestGetAccountDropsFetchThatRacedInvalidation(t *testing.T) {
	f := newBankFixture()
	svc := f.service()

	raced := false
	f.agg.onFetch = func(accessToken string) {
		if accessToken == "token-1" && !raced {
			raced = true
			svc.InvalidateItem("plaid-item-1")
		}
	}

	_, err := svc.GetAccount(context.Background(), 1, "item1", 1)
	require.NoError(t, err)
	_, cached := f.cache.Get("plaid-item-1")
	assert.False(t, cached)

	_, err = svc.GetAccount(context.Background(), 1, "item1", 1)
	require.NoError(t, err)
	_, err = svc.GetAccount(context.Background(), 1, "item1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.agg.fetches["token-1"])
}

func TestGetAccountsSumsBalances(t *testing.T) {
	f := newBankFixture()

	summary, err := f.service().GetAccounts(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, summary.Data, 2)
	assert.Equal(t, "acc-1", summary.Data[0].ID)
	assert.Equal(t, "acc-2", summary.Data[1].ID)
	assert.Equal(t, 2, summary.TotalBanks)
	assert.Equal(t, 0.3, summary.TotalCurrentBalance)
}

func TestGetAccountsDegradesPerBank(t *testing.T) {
	f := newBankFixture()
	f.agg.accountErr["token-1"] = &models.ErrExternalService{Service: "plaid", Err: errors.New("timeout")}

	summary, err := f.service().GetAccounts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, summary.Data, 1)
	assert.Equal(t, "acc-2", summary.Data[0].ID)
	assert.Equal(t, 0.2, summary.TotalCurrentBalance)

	f.cfg.FetchFailurePolicy = config.FailurePolicyPropagate
	_, err = f.service().GetAccounts(context.Background(), 1)
	require.Error(t, err)
}

// siblingFailures are per-item failures that must stay confined to item2.
var siblingFailures = []struct {
	name string
	err  error
}{
	{"external", &models.ErrExternalService{Service: "plaid", Err: errors.New("ITEM_LOGIN_REQUIRED")}},
	{"no accounts on item", &models.ErrNotFound{Resource: "account", ID: "plaid-item-2"}},
	{"item validation", &models.ErrValidation{Field: "access_token", Message: "required"}},
	{"breaker open", &models.ErrExternalService{Service: "plaid", Err: fmt.Errorf("accounts_get: %w", gobreaker.ErrOpenState)}},
	{"plain", errors.New("connection reset by peer")},
}

func TestGetAccountsKeepsSiblingsOnItemFailure(t *testing.T) {
	for _, tt := range siblingFailures {
		t.Run(tt.name, func(t *testing.T) {
			f := newBankFixture()
			f.agg.accountErr["token-2"] = tt.err

			summary, err := f.service().GetAccounts(context.Background(), 1)
			require.NoError(t, err)
			require.Len(t, summary.Data, 1)
			assert.Equal(t, "acc-1", summary.Data[0].ID)
			assert.Equal(t, 1, summary.TotalBanks)
			assert.Equal(t, 0.1, summary.TotalCurrentBalance)
		})
	}
}

func TestTransactionHistoryKeepsSiblingsOnItemFailure(t *testing.T) {
	for _, tt := range siblingFailures {
		t.Run("account "+tt.name, func(t *testing.T) {
			f := newBankFixture()
			f.agg.accountErr["token-2"] = tt.err

			history, err := f.service().TransactionHistory(context.Background(), 1, 1)
			require.NoError(t, err)
			require.Len(t, history.Data, 2)
			require.NotNil(t, history.Data[0].Data)
			assert.Equal(t, "item1", history.Data[0].Data.BankID)
			assert.Equal(t, []string{"A", "T1", "B"}, viewIDs(history.Data[0].Transactions))
			assert.Nil(t, history.Data[1].Data)
			assert.Equal(t, []string{"C", "T1"}, viewIDs(history.Data[1].Transactions))
		})

		t.Run("transactions "+tt.name, func(t *testing.T) {
			f := newBankFixture()
			f.agg.txnErr["token-2"] = tt.err

			history, err := f.service().TransactionHistory(context.Background(), 1, 1)
			require.NoError(t, err)
			require.Len(t, history.Data, 2)
			assert.Equal(t, []string{"A", "T1", "B"}, viewIDs(history.Data[0].Transactions))
			require.NotNil(t, history.Data[1].Data)
			assert.Equal(t, "item2", history.Data[1].Data.BankID)
			assert.Equal(t, []string{"T1"}, viewIDs(history.Data[1].Transactions))
		})
	}
}

func TestTransactionHistoryPropagatePolicyFails(t *testing.T) {
	f := newBankFixture()
	f.cfg.FetchFailurePolicy = config.FailurePolicyPropagate
	f.agg.accountErr["token-2"] = &models.ErrNotFound{Resource: "account", ID: "plaid-item-2"}

	_, err := f.service().TransactionHistory(context.Background(), 1, 1)
	var nf *models.ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestGetAccountsNoBanks(t *testing.T) {
	f := newBankFixture()

	summary, err := f.service().GetAccounts(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, summary.Data)
	assert.NotNil(t, summary.Data)
	assert.Zero(t, summary.TotalCurrentBalance)
}

func TestTransactionHistoryFollowsBankOrder(t *testing.T) {
	f := newBankFixture()

	history, err := f.service().TransactionHistory(context.Background(), 1, 1)
	require.NoError(t, err)

	require.Len(t, history.Data, 2)
	assert.Equal(t, 2, history.TotalBanks)
	assert.Equal(t, "item1", history.Data[0].Data.BankID)
	assert.Equal(t, "item2", history.Data[1].Data.BankID)
	assert.Equal(t, []string{"A", "T1", "B"}, viewIDs(history.Data[0].Transactions))
	assert.Equal(t, []string{"C", "T1"}, viewIDs(history.Data[1].Transactions))
}

func TestTransactionHistoryStoreFailure(t *testing.T) {
	f := newBankFixture()
	f.banks.err = errors.New("db down")

	_, err := f.service().TransactionHistory(context.Background(), 1, 1)
	require.Error(t, err)
}

func TestCategoryBreakdown(t *testing.T) {
	f := newBankFixture()

	counts, err := f.service().CategoryBreakdown(context.Background(), 1, "item1")
	require.NoError(t, err)

	require.Len(t, counts, 3)
	for _, c := range counts {
		assert.Equal(t, 1, c.Count)
		assert.Equal(t, 3, c.TotalCount)
	}
	assert.Equal(t, "Food And Drink", counts[0].Name)
}

func TestBankTransactionsPaginates(t *testing.T) {
	f := newBankFixture()
	var many []models.Transaction
	for i := 1; i <= 12; i++ {
		many = append(many, models.Transaction{ID: "x" + string(rune('a'+i)), Date: date(i)})
	}
	f.agg.txns["token-2"] = many

	page, err := f.service().BankTransactions(context.Background(), "item2", 2)
	require.NoError(t, err)
	assert.Equal(t, 13, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Transactions, 3)
	assert.Equal(t, 11, page.From)
}
