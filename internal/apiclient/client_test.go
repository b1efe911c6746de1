package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	var buf bytes.Buffer
	return NewClient(server.URL, server.Client(), newTestLogger(&buf), nil)
}

type tokenSourceFunc func(ctx context.Context) (string, error)

func (f tokenSourceFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// --- メトリクスのモック ---

type recordedRequest struct {
	method string
	status int
}

type mockMetrics struct {
	requests []recordedRequest
}

func (m *mockMetrics) RecordBackendRequest(method string, statusCode int, _ time.Duration) {
	m.requests = append(m.requests, recordedRequest{method: method, status: statusCode})
}
func (m *mockMetrics) RecordPaymentRedirect(string, string) {}
func (m *mockMetrics) RecordHTTPRequest(int)                {}

// --- テスト ---

func TestClient_Get_DecodesEnvelopeData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/auth/user" {
			t.Errorf("path = %s, want /api/auth/user", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("Authorization should not be set without token source")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"name":"Alice"},"message":"ok","success":true}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.URL+"/api/", server.Client(), newTestLogger(&buf), nil)

	var out struct {
		Name string `json:"name"`
	}
	env, err := c.Get(context.Background(), "/auth/user", &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "Alice" {
		t.Errorf("Name = %q, want %q", out.Name, "Alice")
	}
	if env.Message != "ok" || !env.Succeeded() {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestClient_WithTokens_AttachesBearer(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	base := newTestClient(t, server)
	c := base.WithTokens(tokenSourceFunc(func(context.Context) (string, error) {
		return "access-123", nil
	}))

	if _, err := c.Get(context.Background(), "/products/category/1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer access-123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer access-123")
	}

	// 元のクライアントには影響しない
	if _, err := base.Get(context.Background(), "/products/category/1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("base client should not send Authorization, got %q", gotAuth)
	}
}

func TestClient_WithTokens_EmptyTokenIsNotSent(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server).WithTokens(tokenSourceFunc(func(context.Context) (string, error) {
		return "", nil
	}))
	if _, err := c.Get(context.Background(), "/x", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestClient_WithBearer_PinsToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server).WithBearer("refresh-xyz")
	if _, err := c.Get(context.Background(), "/auth/refresh-token", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer refresh-xyz" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer refresh-xyz")
	}
}

func TestClient_Post_SendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["email"] != "a@example.com" {
			t.Errorf("email = %q", body["email"])
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":null,"message":"created","success":true}`))
	}))
	defer server.Close()

	env, err := newTestClient(t, server).Post(context.Background(), "/auth/register", map[string]string{"email": "a@example.com"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Message != "created" {
		t.Errorf("Message = %q, want %q", env.Message, "created")
	}
}

func TestClient_ErrorStatus_ReturnsTransportErrorWithMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid credentials","success":false}`))
	}))
	defer server.Close()

	mm := &mockMetrics{}
	var buf bytes.Buffer
	c := NewClient(server.URL, server.Client(), newTestLogger(&buf), mm)

	_, err := c.Post(context.Background(), "/auth/login", map[string]string{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T", err)
	}
	if te.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want %d", te.StatusCode, http.StatusUnauthorized)
	}
	if te.Message != "invalid credentials" {
		t.Errorf("Message = %q, want %q", te.Message, "invalid credentials")
	}
	if !IsStatus(err, http.StatusUnauthorized) || StatusCode(err) != 401 || UserMessage(err) != "invalid credentials" {
		t.Error("helper functions should report status and message")
	}
	if len(mm.requests) != 1 || mm.requests[0].status != 401 {
		t.Errorf("metrics = %+v", mm.requests)
	}
}

func TestClient_ErrorStatus_NonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<html>not found</html>`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Get(context.Background(), "/admin/products/x", nil)
	if !IsNotFound(err) {
		t.Fatalf("expected not found TransportError, got %v", err)
	}
	if UserMessage(err) != "" {
		t.Errorf("message should be empty for non-JSON body, got %q", UserMessage(err))
	}
}

func TestClient_ConnectionFailure_ReturnsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	mm := &mockMetrics{}
	var buf bytes.Buffer
	c := NewClient(url, http.DefaultClient, newTestLogger(&buf), mm)

	_, err := c.Get(context.Background(), "/auth/user", nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T (%v)", err, err)
	}
	if te.StatusCode != 0 || te.Err == nil {
		t.Errorf("expected connection error with status 0, got %+v", te)
	}
	if len(mm.requests) != 1 || mm.requests[0].status != 0 {
		t.Errorf("metrics = %+v", mm.requests)
	}
}

func TestClient_CancelledContext_AbortsRequest(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(t, server).Get(ctx, "/slow", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClient_TokenSourceError(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	sentinel := errors.New("store unavailable")
	c := newTestClient(t, server).WithTokens(tokenSourceFunc(func(context.Context) (string, error) {
		return "", sentinel
	}))

	_, err := c.Get(context.Background(), "/auth/user", nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel error, got %v", err)
	}
	if called {
		t.Error("request should not be sent when token lookup fails")
	}
}

func TestClient_EmptyBody_IsEmptyEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	env, err := newTestClient(t, server).Delete(context.Background(), "/admin/products/1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Succeeded() {
		t.Error("missing success field should not count as succeeded")
	}
}

func TestClient_URL(t *testing.T) {
	c := NewClient("https://api.example.com/", nil, nil, nil)
	if got := c.URL("invoices/inv1"); got != "https://api.example.com/invoices/inv1" {
		t.Errorf("URL = %q", got)
	}
	if got := c.URL("/auth/google"); got != "https://api.example.com/auth/google" {
		t.Errorf("URL = %q", got)
	}
}

func TestTransportError_ErrorString(t *testing.T) {
	e := &TransportError{Method: "GET", Path: "/x", StatusCode: 500}
	if e.Error() != "GET /x: status 500" {
		t.Errorf("Error() = %q", e.Error())
	}
	e = &TransportError{Method: "GET", Path: "/x", Err: io.ErrUnexpectedEOF}
	if !errors.Is(e, io.ErrUnexpectedEOF) {
		t.Error("Unwrap should expose cause")
	}
}
