// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/security"
)

// maxJSONBodyBytes はJSONリクエストボディの上限。
const maxJSONBodyBytes = 1 << 20

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL string
}

// AuthHandler は認証関連のHTTPハンドラー。
// トークンはサーバー側のセッションストアに保持し、ブラウザには返さない。
type AuthHandler struct {
	newService AuthServiceFactory
	validator  *security.Validator
	config     AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(newService AuthServiceFactory, validator *security.Validator, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		newService: newService,
		validator:  validator,
		config:     config,
	}
}

// meResponse はローカルセッションの認証状態。
type meResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          json.RawMessage `json:"user"`
}

// messageResponse はバックエンドのメッセージを中継するレスポンス。
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Register は会員登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	var req model.SignUpRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	env, err := svc.SignUp(r.Context(), req)
	if err != nil {
		middleware.WriteUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Success: true, Message: env.Message})
}

// Login はサインインを処理し、トークンとプロフィールをセッションに保存する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	var creds model.Credentials
	if !h.decodeAndValidate(w, r, &creds) {
		return
	}

	result, err := svc.SignIn(r.Context(), creds)
	if err != nil {
		middleware.WriteUpstreamError(w, err)
		return
	}

	if !h.renewSession(w, r, svc) {
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Authenticated: true, User: rawOrNull(result.User)})
}

// Logout はバックエンドのログアウトを呼び出した後、ローカルのセッションを破棄する。
// バックエンドの失敗時もローカルのセッションは破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	if err := svc.SignOut(r.Context()); err != nil {
		slog.Warn("remote sign out failed, clearing local session anyway",
			slog.String("error", err.Error()),
		)
	}
	svc.DestroyTokenUser(r.Context())

	writeJSON(w, http.StatusOK, messageResponse{Success: true})
}

// RefreshToken はリフレッシュトークンでトークンを更新する。
// POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	if _, err := svc.RefreshTokens(r.Context()); err != nil {
		if errors.Is(err, auth.ErrNoRefreshToken) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoRefreshTokenError())
			return
		}
		middleware.WriteUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true})
}

// User はバックエンドからプロフィールを取得してキャッシュし、返す。
// GET /api/auth/user
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	if !svc.IsAuthenticated(r.Context()) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := svc.FetchUser(r.Context())
	if err != nil {
		middleware.WriteUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userJSON(user))
}

// UpdateProfile はプロフィールを更新する。
// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	if !svc.IsAuthenticated(r.Context()) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var upd model.ProfileUpdate
	if !h.decodeAndValidate(w, r, &upd) {
		return
	}

	user, err := svc.UpdateProfile(r.Context(), upd)
	if err != nil {
		middleware.WriteUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userJSON(user))
}

// ResetPassword はパスワードリセットを要求する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	var req model.PasswordReset
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	env, err := svc.ResetPassword(r.Context(), req)
	if err != nil {
		middleware.WriteUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: env.Message})
}

// Me はローカルのセッション状態のみから認証状態とキャッシュされたプロフィールを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		Authenticated: svc.IsAuthenticated(r.Context()),
		User:          userJSON(svc.GetCurrentUser(r.Context())),
	})
}

// DestroySession はローカルのセッションを破棄する。
// DELETE /api/auth/session
func (h *AuthHandler) DestroySession(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	svc.DestroyTokenUser(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// GoogleLogin はバックエンドのGoogleログインへリダイレクトする。
// GET /auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	svc.LoginWithGoogle(redirectNavigator(w, r))
}

// AzureLogin はバックエンドのAzureログインへリダイレクトする。
// GET /auth/azure
func (h *AuthHandler) AzureLogin(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	svc.LoginWithAzure(redirectNavigator(w, r))
}

// OAuthCallback はバックエンドからトークン付きで戻ってきたOAuthコールバックを処理する。
// 成功時はBASE_URLへ、失敗時はローカルセッションを破棄してログインページへリダイレクトする。
// GET /auth/callback?accessToken=xxx&refreshToken=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	if _, err := svc.CompleteOAuth(r.Context(), r.URL.Query()); err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		svc.DestroyTokenUser(r.Context())
		http.Redirect(w, r, h.config.BaseURL+"/login?error=oauth_failed", http.StatusSeeOther)
		return
	}

	if !h.renewSession(w, r, svc) {
		http.Redirect(w, r, h.config.BaseURL+"/login?error=oauth_failed", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
}

// renewSession はログイン成功後にセッションIDを再発行する。
// 失敗時は古いIDに残ったトークンを破棄してfalseを返す。
func (h *AuthHandler) renewSession(w http.ResponseWriter, r *http.Request, svc AuthServiceInterface) bool {
	if _, err := middleware.RenewSession(r.Context()); err != nil {
		slog.Error("failed to renew session", slog.String("error", err.Error()))
		svc.DestroyTokenUser(r.Context())
		return false
	}
	return true
}

// service はリクエストのセッションストアにスコープされた認証クライアントを返す。
func (h *AuthHandler) service(w http.ResponseWriter, r *http.Request) (AuthServiceInterface, bool) {
	store, err := middleware.StoreFromContext(r.Context())
	if err != nil {
		slog.Error("session store missing", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return h.newService(store), true
}

// decodeAndValidate はJSONボディをdstにデコードし、検証する。
// 失敗時はエラーレスポンスを書き込みfalseを返す。
func (h *AuthHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var verr *security.ValidationError
		if errors.As(err, &verr) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(verr.Detail()))
			return false
		}
		slog.Error("validation error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return false
	}
	return true
}

// redirectNavigator はブラウザへのリダイレクトとしてauth.Navigatorを実装する。
func redirectNavigator(w http.ResponseWriter, r *http.Request) auth.Navigator {
	return auth.NavigatorFunc(func(url string) {
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	})
}

func userJSON(u *model.User) json.RawMessage {
	if u == nil {
		return json.RawMessage("null")
	}
	return rawOrNull(u.Raw)
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
