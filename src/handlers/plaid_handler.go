package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

func CreateLinkToken(link LinkAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		linkToken, err := link.CreateLinkToken(r.Context(), userID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"link_token": linkToken})
	}
}

func ExchangePublicToken(link LinkAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PublicToken string `json:"public_token"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			logger.Debug("failed to decode exchange public token request body", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}

		bank, err := link.ExchangePublicToken(r.Context(), userID(r), req.PublicToken)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, bank)
	}
}

type webhookPayload struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// transactionWebhookCodes signal that an item has new or changed transactions.
var transactionWebhookCodes = map[string]bool{
	"SYNC_UPDATES_AVAILABLE": true,
	"DEFAULT_UPDATE":         true,
	"HISTORICAL_UPDATE":      true,
	"INITIAL_UPDATE":         true,
	"TRANSACTIONS_REMOVED":   true,
}

// PlaidWebhook verifies the request signature and drops cached transactions
// for items that report new data. Other webhooks are acknowledged and ignored.
func PlaidWebhook(verifier WebhookVerifier, banks BankAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}

		if err := verifier.Verify(r.Context(), body, r.Header); err != nil {
			logger.Warn("webhook verification failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}

		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}

		logger.Info("plaid webhook",
			zap.String("type", payload.WebhookType),
			zap.String("code", payload.WebhookCode),
			zap.String("item_id", payload.ItemID),
		)

		if payload.WebhookType == "TRANSACTIONS" && transactionWebhookCodes[payload.WebhookCode] && payload.ItemID != "" {
			banks.InvalidateItem(payload.ItemID)
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
