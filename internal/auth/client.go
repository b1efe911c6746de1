// Package auth はバックエンドAPIに対する認証操作とセッションの状態管理を提供する。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hitoshi/storefront/internal/apiclient"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
)

var (
	// ErrNoRefreshToken はリフレッシュトークンが保存されていない場合のエラー。
	ErrNoRefreshToken = errors.New("no refresh token in session")
	// ErrMissingOAuthTokens はOAuthコールバックにトークンが含まれない場合のエラー。
	ErrMissingOAuthTokens = errors.New("oauth callback is missing tokens")
)

// Client は1つのブラウザセッションに対する認証クライアント。
// バックエンドの失敗は*apiclient.TransportErrorのまま呼び出し側へ返す。
type Client struct {
	api    *apiclient.Client
	store  *session.Store
	logger *slog.Logger
}

// NewClient はClientを生成する。
// apiにはstoreのアクセストークンを付与する派生クライアントが設定される。
func NewClient(api *apiclient.Client, store *session.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:    api.WithTokens(store),
		store:  store,
		logger: logger,
	}
}

// SignUp は会員登録を行い、バックエンドのレスポンスを返す。
func (c *Client) SignUp(ctx context.Context, req model.SignUpRequest) (*apiclient.Envelope, error) {
	env, err := c.api.Post(ctx, "/auth/register", req, nil)
	if err != nil {
		c.logFailure("sign up", err)
		return env, err
	}
	return env, nil
}

// SignIn はサインインを行い、取得したトークンとプロフィールをセッションに保存する。
// 以前のセッションの値は保存前に消去する。
func (c *Client) SignIn(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
	var result model.AuthResult
	if _, err := c.api.Post(ctx, "/auth/login", creds, &result); err != nil {
		c.logFailure("sign in", err)
		return nil, err
	}

	if err := c.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear previous session: %w", err)
	}
	if err := c.store.SaveTokens(ctx, model.TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}
	if len(result.User) > 0 && string(result.User) != "null" {
		if err := c.store.SaveUser(ctx, result.User); err != nil {
			return nil, fmt.Errorf("failed to save user: %w", err)
		}
	}

	return &result, nil
}

// LoginWithGoogle はブラウザをGoogleログインへ遷移させる。
func (c *Client) LoginWithGoogle(nav Navigator) {
	nav.Navigate(LoginURL(c.api.BaseURL(), ProviderGoogle))
}

// LoginWithAzure はブラウザをAzureログインへ遷移させる。
func (c *Client) LoginWithAzure(nav Navigator) {
	nav.Navigate(LoginURL(c.api.BaseURL(), ProviderAzure))
}

// CompleteOAuth はOAuthコールバックのクエリからトークンを取り出して保存し、
// プロフィールを取得してキャッシュする。
func (c *Client) CompleteOAuth(ctx context.Context, query url.Values) (*model.User, error) {
	tokens := model.TokenPair{
		AccessToken:  query.Get("accessToken"),
		RefreshToken: query.Get("refreshToken"),
	}
	if tokens.AccessToken == "" {
		return nil, ErrMissingOAuthTokens
	}

	if err := c.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear previous session: %w", err)
	}
	if err := c.store.SaveTokens(ctx, tokens); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}

	return c.FetchUser(ctx)
}

// RefreshTokens はリフレッシュトークンをBearerとして新しいトークンの組を取得し、保存する。
// リフレッシュトークンが無い場合は通信せずにErrNoRefreshTokenを返す。
func (c *Client) RefreshTokens(ctx context.Context) (*model.TokenPair, error) {
	refresh, err := c.store.RefreshToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refresh == "" {
		return nil, ErrNoRefreshToken
	}

	var pair model.TokenPair
	if _, err := c.api.WithBearer(refresh).Get(ctx, "/auth/refresh-token", &pair); err != nil {
		c.logFailure("refresh tokens", err)
		return nil, err
	}

	if err := c.store.SaveTokens(ctx, pair); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}
	return &pair, nil
}

// SignOut はバックエンドのログアウトを呼び出す。
// ローカルのセッションは消去しないため、必要に応じてDestroyTokenUserを呼ぶ。
func (c *Client) SignOut(ctx context.Context) error {
	if _, err := c.api.Post(ctx, "/auth/logout", nil, nil); err != nil {
		c.logFailure("sign out", err)
		return err
	}
	return nil
}

// DestroyTokenUser はトークンとキャッシュされたプロフィールを削除する。
// 常に成功扱いとし、ストアの失敗はログに残すのみ。
func (c *Client) DestroyTokenUser(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("failed to clear session",
			slog.String("session_id", c.store.ID()),
			slog.String("error", err.Error()),
		)
	}
}

// IsAuthenticated はアクセストークンが保存されているかを返す。
// トークンの有効性は検証しない。
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	token, err := c.store.AccessToken(ctx)
	if err != nil {
		c.logger.Error("failed to read access token",
			slog.String("session_id", c.store.ID()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return token != ""
}

// GetCurrentUser はキャッシュされたプロフィールを返す。
// 未保存または不正なJSONの場合はnilを返す。
func (c *Client) GetCurrentUser(ctx context.Context) *model.User {
	raw, ok, err := c.store.Get(ctx, session.KeyUser)
	if err != nil || !ok || raw == "" {
		return nil
	}
	user, err := model.ParseUser([]byte(raw))
	if err != nil {
		c.logger.Warn("discarding malformed cached user",
			slog.String("session_id", c.store.ID()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return user
}

// FetchUser はバックエンドからプロフィールを取得してキャッシュする。
func (c *Client) FetchUser(ctx context.Context) (*model.User, error) {
	var raw json.RawMessage
	if _, err := c.api.Get(ctx, "/auth/user", &raw); err != nil {
		c.logFailure("fetch user", err)
		return nil, err
	}
	return c.cacheUser(ctx, raw)
}

// UpdateProfile はプロフィールを更新し、返されたプロフィールをキャッシュする。
func (c *Client) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error) {
	var raw json.RawMessage
	if _, err := c.api.Put(ctx, "/auth/profile", upd, &raw); err != nil {
		c.logFailure("update profile", err)
		return nil, err
	}
	return c.cacheUser(ctx, raw)
}

// ResetPassword はパスワードリセットを要求する。
func (c *Client) ResetPassword(ctx context.Context, req model.PasswordReset) (*apiclient.Envelope, error) {
	env, err := c.api.Post(ctx, "/auth/reset-password", req, nil)
	if err != nil {
		c.logFailure("reset password", err)
		return env, err
	}
	return env, nil
}

// cacheUser はプロフィールJSONを保存し、解析結果を返す。
// dataが空の場合は既存のキャッシュを維持する。
func (c *Client) cacheUser(ctx context.Context, raw json.RawMessage) (*model.User, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return c.GetCurrentUser(ctx), nil
	}
	user, err := model.ParseUser(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user profile: %w", err)
	}
	if err := c.store.SaveUser(ctx, raw); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return user, nil
}

func (c *Client) logFailure(op string, err error) {
	c.logger.Warn("auth request failed",
		slog.String("operation", op),
		slog.String("session_id", c.store.ID()),
		slog.String("error", err.Error()),
	)
}
