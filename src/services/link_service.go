package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"horizon-server/src/models"
	"horizon-server/src/payments"
	"horizon-server/src/util"
)

// LinkService connects a user's bank through the aggregator and registers it
// with the payments processor.
type LinkService struct {
	users    UserStore
	banks    BankStore
	linker   Linker
	payments Payments
	cache    TransactionCache
	logger   *zap.Logger
}

func NewLinkService(users UserStore, banks BankStore, linker Linker, payments Payments, cache TransactionCache, logger *zap.Logger) *LinkService {
	return &LinkService{
		users:    users,
		banks:    banks,
		linker:   linker,
		payments: payments,
		cache:    cache,
		logger:   logger,
	}
}

func (s *LinkService) CreateLinkToken(ctx context.Context, userID int64) (string, error) {
	ctx, span := tracer.Start(ctx, "LinkService.CreateLinkToken")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.linker.CreateLinkToken(ctx, strconv.FormatInt(user.ID, 10))
}

// ExchangePublicToken finishes the link flow: it swaps the public token for
// an access token, attaches the selected account to the user's payments
// customer as a funding source and stores the bank.
func (s *LinkService) ExchangePublicToken(ctx context.Context, userID int64, publicToken string) (*models.Bank, error) {
	ctx, span := tracer.Start(ctx, "LinkService.ExchangePublicToken")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	if strings.TrimSpace(publicToken) == "" {
		return nil, &models.ErrValidation{Field: "public_token", Message: "required"}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	accessToken, itemID, err := s.linker.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}

	account, err := s.linker.GetAccount(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	processorToken, err := s.linker.CreateProcessorToken(ctx, accessToken, account.ID)
	if err != nil {
		return nil, err
	}

	fundingSourceURL, err := s.payments.AddFundingSource(ctx, customerID(user), processorToken, account.Name)
	if err != nil {
		return nil, err
	}

	bank := &models.Bank{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		ItemID:           itemID,
		AccountID:        account.ID,
		AccessToken:      accessToken,
		InstitutionID:    account.InstitutionID,
		FundingSourceURL: fundingSourceURL,
		ShareableID:      util.EncodeShareableID(account.ID),
	}
	if err := s.banks.Save(ctx, bank); err != nil {
		return nil, err
	}
	s.cache.Invalidate(itemID)

	s.logger.Info("bank linked",
		zap.Int64("user_id", user.ID),
		zap.String("bank_id", bank.ID),
		zap.String("item_id", itemID),
	)
	return bank, nil
}

// customerID prefers the stored id and falls back to the customer URL.
func customerID(user *models.User) string {
	if user.PaymentsCustomerID != "" {
		return user.PaymentsCustomerID
	}
	return payments.CustomerIDFromURL(user.PaymentsCustomerURL)
}
