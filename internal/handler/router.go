package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/security"
	"github.com/hitoshi/storefront/internal/session"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionBackend    session.Backend
	SessionConfig     middleware.SessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler

	// 描画
	Renderer  *Renderer
	Validator *security.Validator

	// 認証
	AuthServices AuthServiceFactory
	AuthConfig   AuthHandlerConfig

	// 決済
	Capturer       CapturerInterface
	CheckoutConfig CheckoutHandlerConfig

	// 管理画面
	ProductServices ProductServicesFactory
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Session → Logging → RateLimit(General) → CSRF
//
// /healthと/metricsはセッションを発行しないためSession以降の外に配置する。
// /apiにはCORS、/api/auth/{login,register,reset-password}には認証用レート制限、
// /adminには管理者ガードを追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// --- セッション不要のルート ---
	r.Get("/health", healthHandler)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthServices, deps.Validator, deps.AuthConfig)
	checkoutHandler := NewCheckoutHandler(deps.Renderer, deps.Capturer, deps.Metrics, deps.CheckoutConfig)
	adminHandler := NewAdminProductHandler(deps.Renderer, deps.ProductServices)

	// --- ブラウザセッションを持つルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionBackend, deps.SessionConfig))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// SPA向けJSON API
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			r.Handle("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

			r.Route("/auth", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(deps.RateLimiter.AuthMiddleware())
					r.Post("/register", authHandler.Register)
					r.Post("/login", authHandler.Login)
					r.Post("/reset-password", authHandler.ResetPassword)
				})
				r.Post("/logout", authHandler.Logout)
				r.Post("/refresh-token", authHandler.RefreshToken)
				r.Get("/user", authHandler.User)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Get("/me", authHandler.Me)
				r.Delete("/session", authHandler.DestroySession)
			})
		})

		// OAuthリダイレクト
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google", authHandler.GoogleLogin)
			r.Get("/azure", authHandler.AzureLogin)
			r.Get("/callback", authHandler.OAuthCallback)
		})

		// 決済リダイレクトページ
		r.Route("/checkout", func(r chi.Router) {
			r.Get("/thank-you", checkoutHandler.ThankYou)
			r.Get("/paypal/thank-you", checkoutHandler.PayPalThankYou)
			r.Get("/failed", checkoutHandler.Failed)
		})

		// 管理画面
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireAdminMiddleware())
			r.Get("/products", adminHandler.List)
			r.Get("/products/{id}/delete", adminHandler.ShowDelete)
			r.Post("/products/{id}/delete", adminHandler.Delete)
		})
	})

	return r
}

// healthHandler はプロセスの生存確認に応答する。
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
