package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
)

// NewRequireAdminMiddleware はキャッシュされたプロフィールのroleがadminであるリクエストのみを通すミドルウェアを返す。
// アクセストークンが無い場合は401、管理者でない場合は403を返す。
// 権限の最終的な判定はバックエンドが行う。
// セッションミドルウェアの後に配置する。
func NewRequireAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, err := StoreFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			token, err := store.AccessToken(r.Context())
			if err != nil {
				slog.Error("failed to read access token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			raw, ok, err := store.Get(r.Context(), session.KeyUser)
			if err != nil {
				slog.Error("failed to read cached user", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			var user *model.User
			if ok {
				user, _ = model.ParseUser([]byte(raw))
			}
			if !user.IsAdmin() {
				slog.Warn("admin access denied",
					slog.String("session_id", store.ID()),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
