package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/apiclient"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/security"
	"github.com/hitoshi/storefront/internal/session"
)

// testSID はテストで使う有効な形式のセッションID。
var testSID = strings.Repeat("ab", 32)

const testCSRF = "csrf-test-token"

// backendCall はフェイクバックエンドが受けたリクエスト。
type backendCall struct {
	Method        string
	Path          string
	Authorization string
	Body          string
}

// fakeBackend はリモートAPIのフェイク。パスごとの応答を登録する。
type fakeBackend struct {
	server *httptest.Server

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  []backendCall
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{routes: make(map[string]http.HandlerFunc)}
	fb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.calls = append(fb.calls, backendCall{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          string(body),
		})
		h, ok := fb.routes[r.Method+" "+r.URL.Path]
		fb.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"not found"}`)
			return
		}
		h(w, r)
	}))
	t.Cleanup(fb.server.Close)
	return fb
}

// on はmethod pathに対して固定のステータスとボディを返すよう登録する。
func (fb *fakeBackend) on(method, path string, status int, body string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.routes[method+" "+path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func (fb *fakeBackend) callsTo(method, path string) []backendCall {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []backendCall
	for _, c := range fb.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (fb *fakeBackend) callCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.calls)
}

// testApp はフェイクバックエンドに接続したルーター一式。
type testApp struct {
	backend  *fakeBackend
	sessions *session.MemoryBackend
	router   http.Handler
}

type testAppOption func(*RouterDeps)

func withCaptureEnabled() testAppOption {
	return func(d *RouterDeps) {
		d.CheckoutConfig.CaptureEnabled = true
	}
}

// withAuthRateLimit は認証エンドポイントのレート制限を1分あたりperMin件に差し替える。
func withAuthRateLimit(t *testing.T, perMin int) testAppOption {
	return func(d *RouterDeps) {
		rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, perMin))
		t.Cleanup(rl.Stop)
		d.RateLimiter = rl
	}
}

func newTestApp(t *testing.T, opts ...testAppOption) *testApp {
	t.Helper()
	fb := newFakeBackend(t)

	sessions := session.NewMemoryBackend(time.Hour)
	t.Cleanup(sessions.Stop)

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, 1000))
	t.Cleanup(rl.Stop)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	api := apiclient.NewClient(fb.server.URL, fb.server.Client(), logger, nil)

	deps := &RouterDeps{
		Logger:            logger,
		SessionBackend:    sessions,
		SessionConfig:     middleware.SessionConfig{MaxAge: 3600},
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       rl,
		MetricsHandler:    http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "# metrics") }),
		Renderer:          MustNewRenderer(),
		Validator:         security.NewValidator(),
		AuthServices:      NewAuthServiceFactory(api, logger),
		AuthConfig:        AuthHandlerConfig{BaseURL: "http://shop.test"},
		CheckoutConfig:    CheckoutHandlerConfig{APIBaseURL: fb.server.URL},
		ProductServices:   NewProductServicesFactory(api, security.NewContentSanitizer(), logger),
	}
	for _, opt := range opts {
		opt(deps)
	}
	if deps.CheckoutConfig.CaptureEnabled {
		deps.Capturer = newTestCapturer(api, logger)
	}

	return &testApp{
		backend:  fb,
		sessions: sessions,
		router:   NewRouter(deps),
	}
}

// seed はtestSIDのセッションに値を保存する。
func (a *testApp) seed(t *testing.T, key, value string) {
	t.Helper()
	if err := a.sessions.Set(context.Background(), testSID, key, value); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func (a *testApp) seedAdmin(t *testing.T) {
	t.Helper()
	a.seed(t, session.KeyAccessToken, "admin-access")
	a.seed(t, session.KeyUser, `{"id":"u1","email":"admin@example.com","role":"admin"}`)
}

func (a *testApp) get(t *testing.T, key string) string {
	t.Helper()
	v, _, _ := a.sessions.Get(context.Background(), testSID, key)
	return v
}

// getFor は指定セッションIDの値を返す。
func (a *testApp) getFor(t *testing.T, sid, key string) string {
	t.Helper()
	v, _, _ := a.sessions.Get(context.Background(), sid, key)
	return v
}

// issuedSID はレスポンスで発行されたsid Cookieの値を返す。複数ある場合は失敗する。
func issuedSID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var sids []string
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			sids = append(sids, c.Value)
		}
	}
	if len(sids) != 1 {
		t.Fatalf("sid cookies = %v, want exactly one", sids)
	}
	return sids[0]
}

// do はtestSIDのセッションCookieとCSRFトークンを付けてリクエストを送る。
func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: testSID})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRF})
	if req.Method != http.MethodGet && req.Header.Get("X-CSRF-Token") == "" && req.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		req.Header.Set("X-CSRF-Token", testCSRF)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}
