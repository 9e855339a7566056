package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"sandy-backend/internal/models"
	"sandy-backend/internal/session"
)

// credentialValidator is the slice of the inference client the profile flow
// needs for key checks.
type credentialValidator interface {
	ValidateCredential(ctx context.Context, key string) bool
}

type ProfileHandler struct {
	manager   *session.Manager
	validator credentialValidator
}

func NewProfileHandler(manager *session.Manager, validator credentialValidator) *ProfileHandler {
	return &ProfileHandler{manager: manager, validator: validator}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	user := store.User()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":               user,
		"has_api_key":        user != nil && user.APIKey != nil && *user.APIKey != "",
		"sidebar_collapsed":  store.SidebarCollapsed(),
		"credential_missing": store.CredentialMissing(),
	})
}

// Update applies a partial profile mutation. Setting a non-empty API key
// clears the credential-missing gate.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	var updates models.ProfileUpdates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := store.UpdateUserProfile(r.Context(), updates); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update profile", r))
		return
	}

	writeJSON(w, http.StatusOK, store.User())
}

// ValidateKey checks a candidate API key against the inference provider
// without storing it.
func (h *ProfileHandler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStore(w, r, h.manager); !ok {
		return
	}

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "API key is required", r))
		return
	}

	valid := h.validator.ValidateCredential(r.Context(), req.APIKey)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// ToggleSidebar flips the sidebar preference; persistence is best-effort.
func (h *ProfileHandler) ToggleSidebar(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}

	collapsed := store.ToggleSidebarCollapsed(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"sidebar_collapsed": collapsed})
}
