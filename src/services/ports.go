// Package services holds the application logic behind the HTTP handlers and
// the CLI. Collaborators are injected through the interfaces below.
package services

import (
	"context"

	"github.com/shopspring/decimal"

	"horizon-server/src/models"
)

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type BankStore interface {
	ListByUser(ctx context.Context, userID int64) ([]models.Bank, error)
	Get(ctx context.Context, id string) (*models.Bank, error)
	GetByAccountID(ctx context.Context, accountID string) (*models.Bank, error)
	GetByItemID(ctx context.Context, itemID string) (*models.Bank, error)
	Save(ctx context.Context, bank *models.Bank) error
}

type TransferStore interface {
	ListByBank(ctx context.Context, bankID string) ([]models.Transfer, error)
	Create(ctx context.Context, t *models.Transfer) error
}

// AccountFetcher reads account snapshots from the aggregator.
type AccountFetcher interface {
	GetAccount(ctx context.Context, accessToken string) (*models.Account, error)
	GetInstitutionName(ctx context.Context, institutionID string) (string, error)
}

type TransactionFetcher interface {
	FetchAdded(ctx context.Context, accessToken string) ([]models.Transaction, error)
}

// TransactionCache stores fetched transactions per Plaid item. Set only
// stores when the item's generation still matches the one read before the
// fetch; Invalidate advances it.
type TransactionCache interface {
	Get(itemID string) ([]models.Transaction, bool)
	Generation(itemID string) uint64
	Set(itemID string, generation uint64, txns []models.Transaction) bool
	Invalidate(itemID string)
}

// Linker covers the aggregator calls of the bank linking flow.
type Linker interface {
	AccountFetcher
	CreateLinkToken(ctx context.Context, clientUserID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)
	CreateProcessorToken(ctx context.Context, accessToken, accountID string) (string, error)
}

type Payments interface {
	CreateCustomer(ctx context.Context, req *models.RegisterRequest) (string, error)
	AddFundingSource(ctx context.Context, customerID, processorToken, bankName string) (string, error)
	CreateTransfer(ctx context.Context, sourceURL, destinationURL string, amount decimal.Decimal) (string, error)
}
