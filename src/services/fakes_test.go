package services_test

import (
	"context"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"horizon-server/src/models"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int64]*models.User
	nextID int64
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[int64]*models.User{}, nextID: 100}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, &models.ErrNotFound{Resource: "user", ID: strconv.FormatInt(id, 10)}
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, &models.ErrNotFound{Resource: "user", ID: email}
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	user.ID = f.nextID
	f.byID[user.ID] = user
	return nil
}

type fakeBanks struct {
	mu    sync.Mutex
	banks []models.Bank
	err   error
}

func (f *fakeBanks) ListByUser(_ context.Context, userID int64) ([]models.Bank, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Bank
	for _, b := range f.banks {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBanks) find(match func(models.Bank) bool, id string) (*models.Bank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.banks {
		if match(b) {
			b := b
			return &b, nil
		}
	}
	return nil, &models.ErrNotFound{Resource: "bank", ID: id}
}

func (f *fakeBanks) Get(_ context.Context, id string) (*models.Bank, error) {
	return f.find(func(b models.Bank) bool { return b.ID == id }, id)
}

func (f *fakeBanks) GetByAccountID(_ context.Context, accountID string) (*models.Bank, error) {
	return f.find(func(b models.Bank) bool { return b.AccountID == accountID }, accountID)
}

func (f *fakeBanks) GetByItemID(_ context.Context, itemID string) (*models.Bank, error) {
	return f.find(func(b models.Bank) bool { return b.ItemID == itemID }, itemID)
}

func (f *fakeBanks) Save(_ context.Context, bank *models.Bank) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banks = append(f.banks, *bank)
	return nil
}

type fakeTransfers struct {
	mu       sync.Mutex
	items    []models.Transfer
	err      error
	lastSent *models.Transfer
}

func (f *fakeTransfers) ListByBank(_ context.Context, bankID string) ([]models.Transfer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transfer
	for _, t := range f.items {
		if t.SenderBankID == bankID || t.ReceiverBankID == bankID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTransfers) Create(_ context.Context, t *models.Transfer) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, *t)
	f.lastSent = t
	return nil
}

// fakeAggregator serves accounts and transactions keyed by access token.
type fakeAggregator struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	accountErr   map[string]error
	institutions map[string]string
	txns         map[string][]models.Transaction
	txnErr       map[string]error
	fetches      map[string]int
	onFetch      func(accessToken string)

	linkToken      string
	exchangeToken  string
	exchangeItemID string
	processorToken string
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{
		accounts:     map[string]*models.Account{},
		accountErr:   map[string]error{},
		institutions: map[string]string{},
		txns:         map[string][]models.Transaction{},
		txnErr:       map[string]error{},
		fetches:      map[string]int{},
	}
}

func (f *fakeAggregator) GetAccount(_ context.Context, accessToken string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.accountErr[accessToken]; err != nil {
		return nil, err
	}
	acc, ok := f.accounts[accessToken]
	if !ok {
		return nil, &models.ErrNotFound{Resource: "account", ID: accessToken}
	}
	cp := *acc
	return &cp, nil
}

func (f *fakeAggregator) GetInstitutionName(_ context.Context, institutionID string) (string, error) {
	return f.institutions[institutionID], nil
}

func (f *fakeAggregator) FetchAdded(_ context.Context, accessToken string) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[accessToken]++
	if f.onFetch != nil {
		f.onFetch(accessToken)
	}
	if accessToken == "" {
		return nil, &models.ErrValidation{Field: "access_token", Message: "required"}
	}
	if err := f.txnErr[accessToken]; err != nil {
		return nil, err
	}
	return f.txns[accessToken], nil
}

func (f *fakeAggregator) CreateLinkToken(_ context.Context, clientUserID string) (string, error) {
	return f.linkToken + clientUserID, nil
}

func (f *fakeAggregator) ExchangePublicToken(_ context.Context, _ string) (string, string, error) {
	return f.exchangeToken, f.exchangeItemID, nil
}

func (f *fakeAggregator) CreateProcessorToken(_ context.Context, _, _ string) (string, error) {
	return f.processorToken, nil
}

type mapCache struct {
	mu          sync.Mutex
	m           map[string][]models.Transaction
	gens        map[string]uint64
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{m: map[string][]models.Transaction{}, gens: map[string]uint64{}}
}

func (c *mapCache) Get(itemID string) ([]models.Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.m[itemID]
	return t, ok
}

func (c *mapCache) Generation(itemID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[itemID]
}

func (c *mapCache) Set(itemID string, generation uint64, txns []models.Transaction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[itemID] != generation {
		return false
	}
	c.m[itemID] = txns
	return true
}

func (c *mapCache) Invalidate(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[itemID]++
	delete(c.m, itemID)
	c.invalidated = append(c.invalidated, itemID)
}

type fakePayments struct {
	customerURL   string
	fundingURL    string
	fundingFor    string
	transferErr   error
	transferredOf decimal.Decimal
	source, dest  string
}

func (f *fakePayments) CreateCustomer(_ context.Context, _ *models.RegisterRequest) (string, error) {
	return f.customerURL, nil
}

func (f *fakePayments) AddFundingSource(_ context.Context, customerID, _, _ string) (string, error) {
	f.fundingFor = customerID
	return f.fundingURL, nil
}

func (f *fakePayments) CreateTransfer(_ context.Context, source, dest string, amount decimal.Decimal) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.source, f.dest, f.transferredOf = source, dest, amount
	return "https://payments.example/transfers/1", nil
}
