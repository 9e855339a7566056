package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"sandy-backend/internal/middleware"
	"sandy-backend/internal/models"
	"sandy-backend/internal/session"
)

// SessionHandler maps the identity provider's auth events onto session
// lifecycle: attach on sign-in, detach on sign-out.
type SessionHandler struct {
	manager *session.Manager
}

func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// sessionState is the full snapshot a client renders from.
type sessionState struct {
	User              *models.User     `json:"user"`
	Chats             []*models.Chat   `json:"chats"`
	CurrentChatID     *uuid.UUID       `json:"current_chat_id"`
	Folders           []*models.Folder `json:"folders"`
	Favorites         []uuid.UUID      `json:"favorites"`
	SidebarCollapsed  bool             `json:"sidebar_collapsed"`
	CredentialMissing bool             `json:"credential_missing"`
	LastEditError     *string          `json:"last_edit_error"`
}

func snapshot(store *session.Store) sessionState {
	state := sessionState{
		User:              store.User(),
		Chats:             store.Chats(),
		CurrentChatID:     store.CurrentChatID(),
		Folders:           store.Folders(),
		Favorites:         store.Favorites(),
		SidebarCollapsed:  store.SidebarCollapsed(),
		CredentialMissing: store.CredentialMissing(),
	}
	if err := store.LastEditError(); err != nil {
		msg := err.Error()
		state.LastEditError = &msg
	}
	if state.Chats == nil {
		state.Chats = []*models.Chat{}
	}
	if state.Folders == nil {
		state.Folders = []*models.Folder{}
	}
	if state.Favorites == nil {
		state.Favorites = []uuid.UUID{}
	}
	return state
}

// Attach binds the authenticated user to a session store and pulls the full
// remote snapshot. Idempotent: re-attaching re-syncs.
func (h *SessionHandler) Attach(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	email := middleware.GetUserEmail(r.Context())

	store, err := h.manager.Attach(r.Context(), userID, email)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to attach session", r))
		return
	}

	writeJSON(w, http.StatusOK, snapshot(store))
}

// State returns the current snapshot without re-syncing.
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.manager)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshot(store))
}

// Detach handles sign-out: the user's store is reset and dropped. Detaching
// without an attached session is a no-op.
func (h *SessionHandler) Detach(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	h.manager.Detach(userID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session detached"})
}
