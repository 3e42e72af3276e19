package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"horizon-server/src/models"
)

func CreateTransfer(transfers TransferAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateTransferRequest
		if err := decodeJSON(w, r, &req); err != nil {
			logger.Debug("failed to decode transfer request body", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}

		transfer, err := transfers.CreateTransfer(r.Context(), userID(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("transfer accepted",
			zap.String("transfer_id", transfer.ID),
			zap.String("amount", money(transfer.Amount)),
		)
		writeJSON(w, http.StatusCreated, transfer)
	}
}
