// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/storefront/internal/session"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "sid"

// sessionIDBytes はセッションIDの生成に使う乱数のバイト数。
const sessionIDBytes = 32

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	storeContextKey       = contextKey("session_store")
	establishedContextKey = contextKey("session_established")
	renewContextKey       = contextKey("session_renew")
	requestIDContextKey   = contextKey("request_id")
	csrfContextKey        = contextKey("csrf_token")
)

// sessionRenewer はセッションIDを再発行し、新しいStoreを返す。
type sessionRenewer func(ctx context.Context) (*session.Store, error)

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒
}

// NewSessionMiddleware はHTTP Only CookieからブラウザセッションIDを読み取り、
// そのセッションにスコープされたsession.Storeをリクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無い、または形式が不正な場合は新しいIDを発行する。
// 提示されたIDにアクセストークンが保存されている場合のみ確立済みセッションとして扱う。
// 未認証でもリクエストは拒否しない。
func NewSessionMiddleware(backend session.Backend, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			var sid string
			if cookie, err := r.Cookie(SessionCookieName); err == nil && validSessionID(cookie.Value) {
				sid = cookie.Value
			}

			// 2. 確立済みかを判定し、無ければ新規発行
			established := false
			if sid != "" {
				if v, ok, err := backend.Get(r.Context(), sid, session.KeyAccessToken); err == nil && ok && v != "" {
					established = true
				}
			} else {
				id, err := generateSessionID()
				if err != nil {
					slog.Error("failed to generate session id",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				sid = id
			}

			// 3. 有効期限を延長してCookieを再設定
			setSessionCookie(w, config, sid)

			// 4. セッションストアと再発行関数をコンテキストに注入
			store := session.NewStore(backend, sid)
			renew := func(ctx context.Context) (*session.Store, error) {
				id, err := generateSessionID()
				if err != nil {
					return nil, fmt.Errorf("failed to generate session id: %w", err)
				}
				moved, err := store.MoveTo(ctx, id)
				if err != nil {
					return nil, err
				}
				setSessionCookie(w, config, id)
				store = moved
				return moved, nil
			}

			ctx := ContextWithStore(r.Context(), store)
			ctx = context.WithValue(ctx, establishedContextKey, established)
			ctx = context.WithValue(ctx, renewContextKey, sessionRenewer(renew))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RenewSession はログイン成功後にセッションIDを再発行する。
// 保存済みの値は新しいIDへ移し、古いIDからは削除してCookieを差し替える。
func RenewSession(ctx context.Context) (*session.Store, error) {
	renew, ok := ctx.Value(renewContextKey).(sessionRenewer)
	if !ok || renew == nil {
		return nil, fmt.Errorf("session renewer not found in context")
	}
	return renew(ctx)
}

// SessionEstablished はリクエストがサーバー側に存在する認証済みセッションを提示したかを返す。
func SessionEstablished(ctx context.Context) bool {
	v, _ := ctx.Value(establishedContextKey).(bool)
	return v
}

// setSessionCookie はsid Cookieを設定する。既に設定済みのsid Cookieは置き換える。
func setSessionCookie(w http.ResponseWriter, config SessionConfig, sid string) {
	h := w.Header()
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, SessionCookieName+"=") {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sid,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// StoreFromContext はリクエストコンテキストからセッションストアを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func StoreFromContext(ctx context.Context) (*session.Store, error) {
	store, ok := ctx.Value(storeContextKey).(*session.Store)
	if !ok || store == nil {
		return nil, fmt.Errorf("session store not found in context")
	}
	return store, nil
}

// ContextWithStore はコンテキストにセッションストアを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithStore(ctx context.Context, store *session.Store) context.Context {
	return context.WithValue(ctx, storeContextKey, store)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validSessionID はCookieの値が発行したセッションIDの形式であるかを判定する。
func validSessionID(v string) bool {
	if len(v) != sessionIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
