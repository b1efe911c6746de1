// Package apiclient はリモートREST APIを呼び出す薄いHTTPクライアントを提供する。
// Bearerトークンの付与とレスポンスエンベロープ {data, message?, success?} のデコードを担う。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/storefront/internal/metrics"
)

// TokenSource はリクエストに付与するアクセストークンの取得元。
// 空文字列を返した場合はAuthorizationヘッダーを付与しない。
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// staticToken は固定のトークンを返すTokenSource。
type staticToken string

func (t staticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

// Envelope はバックエンドAPIのレスポンスエンベロープ。
type Envelope struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Success *bool           `json:"success,omitempty"`
}

// Succeeded はsuccessフィールドがtrueであるかを返す。
// フィールドが存在しない場合はfalseとする。
func (e *Envelope) Succeeded() bool {
	return e != nil && e.Success != nil && *e.Success
}

// Client はバックエンドAPIのクライアント。
// WithTokens/WithBearerで派生させたコピーは元のClientと設定を共有する。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	tokens     TokenSource
	userAgent  string
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientのタイムアウトは呼び出し側の設定に従う。
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, mc metrics.MetricsCollector) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		metrics:    mc,
		userAgent:  "Storefront/1.0",
	}
}

// WithTokens はtsから取得したアクセストークンを付与するクライアントのコピーを返す。
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// WithBearer は指定トークンを固定で付与するクライアントのコピーを返す。
func (c *Client) WithBearer(token string) *Client {
	return c.WithTokens(staticToken(token))
}

// BaseURL はAPIのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL はAPIパスから絶対URLを組み立てる。
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Get はGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, path string, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post はPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put はPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, path string, body, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string, out any) (*Envelope, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do はリクエストを送信し、レスポンスエンベロープを返す。
// outがnilでない場合はエンベロープのdataをoutにデコードする。
// 失敗はすべて*TransportErrorとして返す。リトライは行わない。
// ctxがキャンセルされると送信中のリクエストも中断される。
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (*Envelope, error) {
	start := time.Now()

	// 1. リクエストボディの構築
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to encode request body: %w", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// 2. Bearerトークンの付与
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to read access token: %w", err)}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	// 3. リクエスト実行
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(method, 0, time.Since(start))
		c.logger.Error("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordBackendRequest(method, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	// 4. エンベロープのデコード（空ボディは空エンベロープとして扱う）
	env := &Envelope{}
	var decodeErr error
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, env)
	}

	// 5. HTTPステータスチェック
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if decodeErr != nil {
			msg = ""
		}
		c.logger.Warn("backend returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
		)
		return env, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return nil, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response envelope: %w", decodeErr)}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response data: %w", err)}
		}
	}

	return env, nil
}
