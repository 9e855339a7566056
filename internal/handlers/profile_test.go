package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"sandy-backend/internal/models"
	"sandy-backend/internal/session"
)

type stubValidator struct {
	valid   bool
	gotKey  string
	queried bool
}

func (s *stubValidator) ValidateCredential(ctx context.Context, key string) bool {
	s.queried = true
	s.gotKey = key
	return s.valid
}

func newProfileEnv(t *testing.T) (*ProfileHandler, *stubValidator, *session.Store, uuid.UUID) {
	t.Helper()
	manager := session.NewManager(newMemChatRepo(), newMemFolderRepo(), newMemProfileRepo(), nil)
	userID := uuid.New()
	store, err := manager.Attach(context.Background(), userID, "sandy@example.com")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	validator := &stubValidator{valid: true}
	return NewProfileHandler(manager, validator), validator, store, userID
}

func TestProfileHandler_UpdatePersistsAndReturnsUser(t *testing.T) {
	h, _, store, userID := newProfileEnv(t)

	body := map[string]interface{}{
		"full_name": "Sandy",
		"api_key":   "sk-or-v1-abc",
	}
	req := authedRequest(t, http.MethodPut, "/api/v1/profile", body, userID)
	rr := httptest.NewRecorder()
	h.Update(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	user := store.User()
	if user.FullName == nil || *user.FullName != "Sandy" {
		t.Fatal("full name must land on the session user")
	}
	if user.APIKey == nil || *user.APIKey != "sk-or-v1-abc" {
		t.Fatal("api key must land on the session user")
	}

	// The key never leaks into the response body.
	var resp map[string]interface{}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if _, leaked := resp["api_key"]; leaked {
		t.Fatal("api key must not serialize")
	}
}

func TestProfileHandler_GetReportsKeyPresenceOnly(t *testing.T) {
	h, _, store, userID := newProfileEnv(t)

	key := "sk-or-v1-abc"
	if err := store.UpdateUserProfile(context.Background(), models.ProfileUpdates{APIKey: &key}); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	req := authedRequest(t, http.MethodGet, "/api/v1/profile", nil, userID)
	rr := httptest.NewRecorder()
	h.Get(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		HasAPIKey bool `json:"has_api_key"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.HasAPIKey {
		t.Fatal("key presence must be reported")
	}
}

func TestProfileHandler_ValidateKey(t *testing.T) {
	h, validator, _, userID := newProfileEnv(t)

	req := authedRequest(t, http.MethodPost, "/api/v1/profile/validate-key",
		map[string]string{"api_key": "sk-or-v1-check"}, userID)
	rr := httptest.NewRecorder()
	h.ValidateKey(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !validator.queried || validator.gotKey != "sk-or-v1-check" {
		t.Fatalf("validator saw %q", validator.gotKey)
	}
	var resp map[string]bool
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp["valid"] {
		t.Fatal("expected valid=true")
	}

	// Empty key is rejected without a provider round trip.
	validator.queried = false
	req = authedRequest(t, http.MethodPost, "/api/v1/profile/validate-key",
		map[string]string{"api_key": ""}, userID)
	rr = httptest.NewRecorder()
	h.ValidateKey(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if validator.queried {
		t.Fatal("empty key must not reach the validator")
	}
}

func TestProfileHandler_ToggleSidebar(t *testing.T) {
	h, _, store, userID := newProfileEnv(t)

	req := authedRequest(t, http.MethodPut, "/api/v1/profile/sidebar", nil, userID)
	rr := httptest.NewRecorder()
	h.ToggleSidebar(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]bool
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp["sidebar_collapsed"] {
		t.Fatal("first toggle must collapse")
	}
	if !store.SidebarCollapsed() {
		t.Fatal("store must reflect the toggle")
	}
}
