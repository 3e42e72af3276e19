package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// GetUser returns the authenticated user.
func GetUser(auth AuthAPI, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.GetUser(r.Context(), userID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
