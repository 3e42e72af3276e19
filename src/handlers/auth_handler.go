package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"horizon-server/src/models"
)

func Register(auth AuthAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			logger.Debug("failed to decode register request body", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}

		resp, err := auth.Register(r.Context(), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func Login(auth AuthAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var credentials struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &credentials); err != nil {
			logger.Debug("failed to decode login request body", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}

		resp, err := auth.Login(r.Context(), credentials.Email, credentials.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
