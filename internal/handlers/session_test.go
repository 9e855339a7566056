package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"sandy-backend/internal/middleware"
	"sandy-backend/internal/models"
	"sandy-backend/internal/session"
)

func attachRequest(t *testing.T, method string, userID uuid.UUID, email string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1/session", nil)
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	ctx = context.WithValue(ctx, middleware.UserEmailKey, email)
	return req.WithContext(ctx)
}

func TestSessionHandler_AttachReturnsSnapshot(t *testing.T) {
	manager := session.NewManager(newMemChatRepo(), newMemFolderRepo(), newMemProfileRepo(), nil)
	h := NewSessionHandler(manager)
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.Attach(rr, attachRequest(t, http.MethodPost, userID, "first@example.com"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var state sessionState
	if err := json.NewDecoder(rr.Body).Decode(&state); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if state.User == nil || state.User.ID != userID {
		t.Fatal("snapshot must carry the attached user")
	}
	if state.User.Preferences.DefaultModel != models.DefaultModelID {
		t.Fatal("first sign-in must create a profile with defaults")
	}
	if state.Chats == nil || state.Folders == nil || state.Favorites == nil {
		t.Fatal("collections must serialize as empty arrays, not null")
	}
	if state.CurrentChatID != nil {
		t.Fatal("fresh session has no current chat")
	}
}

func TestSessionHandler_StateWithoutAttach(t *testing.T) {
	manager := session.NewManager(newMemChatRepo(), newMemFolderRepo(), newMemProfileRepo(), nil)
	h := NewSessionHandler(manager)

	rr := httptest.NewRecorder()
	h.State(rr, attachRequest(t, http.MethodGet, uuid.New(), "x@example.com"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want conflict before attach", rr.Code)
	}
}

func TestSessionHandler_DetachClearsSession(t *testing.T) {
	manager := session.NewManager(newMemChatRepo(), newMemFolderRepo(), newMemProfileRepo(), nil)
	h := NewSessionHandler(manager)
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.Attach(rr, attachRequest(t, http.MethodPost, userID, "bye@example.com"))
	if rr.Code != http.StatusOK {
		t.Fatalf("attach status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Detach(rr, attachRequest(t, http.MethodDelete, userID, "bye@example.com"))
	if rr.Code != http.StatusOK {
		t.Fatalf("detach status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.State(rr, attachRequest(t, http.MethodGet, userID, "bye@example.com"))
	if rr.Code != http.StatusConflict {
		t.Fatal("state must be gone after detach")
	}

	// Detaching again stays a no-op.
	rr = httptest.NewRecorder()
	h.Detach(rr, attachRequest(t, http.MethodDelete, userID, "bye@example.com"))
	if rr.Code != http.StatusOK {
		t.Fatalf("second detach status = %d", rr.Code)
	}
}
