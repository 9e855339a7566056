package handlers

import (
	"encoding/json"
	"net/http"

	"sandy-backend/internal/middleware"
	"sandy-backend/internal/models"
	"sandy-backend/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

// requireStore resolves the caller's attached session store. A request from a
// signed-in user without an attached session is a client ordering bug (attach
// comes first), reported as a conflict.
func requireStore(w http.ResponseWriter, r *http.Request, manager *session.Manager) (*session.Store, bool) {
	userID := middleware.GetUserID(r.Context())
	store, ok := manager.Get(userID)
	if !ok {
		writeJSON(w, http.StatusConflict, errorResp("NO_SESSION", "No active session; attach first", r))
		return nil, false
	}
	return store, true
}
