package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sandy-backend/internal/models"
)

func TestExchange_SendsHistoryAndReturnsAssistant(t *testing.T) {
	var gotAuth, gotReferer string
	var gotBody struct {
		Model    string            `json:"model"`
		Messages []json.RawMessage `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Recursion is..."}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	history := []models.Message{
		{Role: models.RoleUser, Content: models.TextContent("Explain recursion")},
	}

	msg, err := c.Exchange(context.Background(), "test/model", history, "user-key")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if msg.Role != models.RoleAssistant || msg.Content.FirstText() != "Recursion is..." {
		t.Fatalf("unexpected assistant message: %+v", msg)
	}
	if gotAuth != "Bearer user-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotReferer == "" {
		t.Fatal("HTTP-Referer header must be set")
	}
	if gotBody.Model != "test/model" || len(gotBody.Messages) != 1 {
		t.Fatalf("request body: model=%q messages=%d", gotBody.Model, len(gotBody.Messages))
	}
}

func TestExchange_DefaultKeyFallback(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "server-key", time.Second)
	if _, err := c.Exchange(context.Background(), "m", nil, ""); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if gotAuth != "Bearer server-key" {
		t.Fatalf("Authorization = %q, want server default", gotAuth)
	}
}

func TestExchange_MissingCredentialBeforeIO(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Exchange(context.Background(), "m", nil, "")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if requests != 0 {
		t.Fatal("no request may leave the client without a credential")
	}
}

func TestExchange_ErrorBodyMessageExtracted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"Insufficient credits"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.Exchange(context.Background(), "m", nil, "")
	if err == nil || err.Error() != "Insufficient credits" {
		t.Fatalf("expected provider message, got %v", err)
	}
}

func TestExchange_GenericFailureMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.Exchange(context.Background(), "m", nil, "")
	if err == nil || err.Error() != "failed to send message (status 502)" {
		t.Fatalf("expected generic failure message, got %v", err)
	}
}

func TestExchange_CancellationIsNotFailure(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and
		// cancels r.Context() when the client disconnects; otherwise the
		// handler never unblocks and srv.Close() deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 10*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Exchange(ctx, "m", nil, "")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestExchange_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	if _, err := c.Exchange(context.Background(), "m", nil, ""); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestValidateCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/key" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") == "Bearer good-key" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if !c.ValidateCredential(context.Background(), "good-key") {
		t.Fatal("valid key must pass")
	}
	if c.ValidateCredential(context.Background(), "bad-key") {
		t.Fatal("rejected key must fail")
	}
	if c.ValidateCredential(context.Background(), "") {
		t.Fatal("empty key must fail without a request")
	}
}

func TestValidateCredential_NetworkFailureIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if c.ValidateCredential(context.Background(), "any") {
		t.Fatal("unreachable provider must count as invalid")
	}
}
