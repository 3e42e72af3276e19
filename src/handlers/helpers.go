package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"horizon-server/src/middleware"
	"horizon-server/src/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

// Services the handlers call. Each is satisfied by the matching type in the
// services package.
type (
	AuthAPI interface {
		Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error)
		Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
		GetUser(ctx context.Context, userID int64) (*models.User, error)
	}

	BankAPI interface {
		GetAccounts(ctx context.Context, userID int64) (*models.AccountsSummary, error)
		GetAccount(ctx context.Context, userID int64, bankID string, page int) (*models.AccountDetail, error)
		TransactionHistory(ctx context.Context, userID int64, page int) (*models.TransactionHistory, error)
		CategoryBreakdown(ctx context.Context, userID int64, bankID string) ([]models.CategoryCount, error)
		InvalidateItem(itemID string)
	}

	LinkAPI interface {
		CreateLinkToken(ctx context.Context, userID int64) (string, error)
		ExchangePublicToken(ctx context.Context, userID int64, publicToken string) (*models.Bank, error)
	}

	TransferAPI interface {
		CreateTransfer(ctx context.Context, userID int64, req *models.CreateTransferRequest) (*models.Transfer, error)
	}

	WebhookVerifier interface {
		Verify(ctx context.Context, body []byte, header http.Header) error
	}
)

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON rejects unknown fields and bodies over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// parsePage reads ?page=N. Missing or malformed values mean page 1.
func parsePage(r *http.Request) int {
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return 1
}

func userID(r *http.Request) int64 {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *models.ErrNotFound
	var validation *models.ErrValidation
	var external *models.ErrExternalService
	var forbidden *models.ErrForbidden
	var unauthorized *models.ErrUnauthorized
	var conflict *models.ErrConflict

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "upstream temporarily unavailable")
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream request failed")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// money formats an amount for logs.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
