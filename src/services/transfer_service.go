package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"horizon-server/src/models"
	"horizon-server/src/util"
)

const (
	transferChannel  = "online"
	transferCategory = "Transfer"
)

type TransferService struct {
	banks     BankStore
	transfers TransferStore
	payments  Payments
	logger    *zap.Logger
}

func NewTransferService(banks BankStore, transfers TransferStore, payments Payments, logger *zap.Logger) *TransferService {
	return &TransferService{banks: banks, transfers: transfers, payments: payments, logger: logger}
}

// CreateTransfer moves money from one of the user's banks to the bank behind
// a shareable id and records the transfer.
func (s *TransferService) CreateTransfer(ctx context.Context, userID int64, req *models.CreateTransferRequest) (*models.Transfer, error) {
	ctx, span := tracer.Start(ctx, "TransferService.CreateTransfer")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	amount, err := validateTransfer(req)
	if err != nil {
		return nil, err
	}

	sender, err := s.banks.Get(ctx, req.SenderBankID)
	if err != nil {
		return nil, err
	}
	if sender.UserID != userID {
		return nil, &models.ErrForbidden{Action: "transfer from bank " + req.SenderBankID}
	}

	accountID, err := util.DecodeShareableID(strings.TrimSpace(req.ShareableID))
	if err != nil {
		return nil, &models.ErrValidation{Field: "shareable_id", Message: "malformed"}
	}
	receiver, err := s.banks.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if receiver.ID == sender.ID {
		return nil, &models.ErrValidation{Field: "shareable_id", Message: "cannot transfer to the sending account"}
	}

	transferURL, err := s.payments.CreateTransfer(ctx, sender.FundingSourceURL, receiver.FundingSourceURL, amount)
	if err != nil {
		return nil, err
	}

	transfer := &models.Transfer{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Amount:         amount.InexactFloat64(),
		Channel:        transferChannel,
		Category:       transferCategory,
		Email:          req.Email,
		SenderID:       userID,
		SenderBankID:   sender.ID,
		ReceiverID:     receiver.UserID,
		ReceiverBankID: receiver.ID,
	}
	if err := s.transfers.Create(ctx, transfer); err != nil {
		// The money already moved; the record is what is missing.
		s.logger.Error("transfer sent but not recorded",
			zap.String("transfer_url", transferURL),
			zap.String("sender_bank_id", sender.ID),
			zap.String("receiver_bank_id", receiver.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("transfer created",
		zap.String("transfer_id", transfer.ID),
		zap.String("transfer_url", transferURL),
		zap.Int64("user_id", userID),
	)
	return transfer, nil
}

func validateTransfer(req *models.CreateTransferRequest) (decimal.Decimal, error) {
	if strings.TrimSpace(req.SenderBankID) == "" {
		return decimal.Zero, &models.ErrValidation{Field: "sender_bank_id", Message: "required"}
	}
	if strings.TrimSpace(req.ShareableID) == "" {
		return decimal.Zero, &models.ErrValidation{Field: "shareable_id", Message: "required"}
	}
	if strings.TrimSpace(req.Name) == "" {
		return decimal.Zero, &models.ErrValidation{Field: "name", Message: "required"}
	}
	if req.Email != "" && !util.ValidateEmail(req.Email) {
		return decimal.Zero, &models.ErrValidation{Field: "email", Message: "invalid email"}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return decimal.Zero, &models.ErrValidation{Field: "amount", Message: "not a number"}
	}
	if !amount.IsPositive() {
		return decimal.Zero, &models.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, &models.ErrValidation{Field: "amount", Message: "at most two decimal places"}
	}
	return amount, nil
}
