package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/payment"
)

// CapturerInterface はPayPalキャプチャのインターフェース。
type CapturerInterface interface {
	Capture(ctx context.Context, token string) payment.CaptureResult
}

// compile-time interface check
var _ CapturerInterface = (*payment.Capturer)(nil)

// CheckoutHandlerConfig は決済リダイレクトページの設定。
type CheckoutHandlerConfig struct {
	APIBaseURL     string
	CaptureEnabled bool
}

// CheckoutHandler は決済プロバイダーからのリダイレクト先ページのハンドラー。
type CheckoutHandler struct {
	renderer *Renderer
	capturer CapturerInterface
	metrics  metrics.MetricsCollector
	config   CheckoutHandlerConfig
}

// NewCheckoutHandler はCheckoutHandlerを生成する。
// capturerはCaptureEnabledがfalseの場合nilでよい。
func NewCheckoutHandler(renderer *Renderer, capturer CapturerInterface, mc metrics.MetricsCollector, config CheckoutHandlerConfig) *CheckoutHandler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &CheckoutHandler{
		renderer: renderer,
		capturer: capturer,
		metrics:  mc,
		config:   config,
	}
}

// thankYouPage はサンクスページのテンプレートデータ。
type thankYouPage struct {
	Title   string
	Payment payment.View
}

// failedPage は決済失敗ページのテンプレートデータ。
type failedPage struct {
	Title   string
	Actions []payment.Action
}

// ThankYou は決済完了ページを表示する。
// GET /checkout/thank-you?invoice=xxx
func (h *CheckoutHandler) ThankYou(w http.ResponseWriter, r *http.Request) {
	h.renderThankYou(w, r, payment.PageThankYou)
}

// PayPalThankYou はPayPalからのリダイレクト先ページを表示する。
// キャプチャが有効でクエリにtokenがある場合は、キャプチャ結果に応じてリダイレクトする。
// GET /checkout/paypal/thank-you?invoice=xxx | ?token=yyy
func (h *CheckoutHandler) PayPalThankYou(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if h.config.CaptureEnabled && h.capturer != nil && token != "" {
		result := h.capturer.Capture(r.Context(), token)
		h.metrics.RecordPaymentRedirect(string(payment.PagePayPalThankYou), string(result.State))
		if result.Err != nil {
			slog.Warn("paypal capture did not complete",
				slog.String("error", result.Err.Error()),
			)
		}
		http.Redirect(w, r, result.RedirectURL, http.StatusSeeOther)
		return
	}

	h.renderThankYou(w, r, payment.PagePayPalThankYou)
}

// Failed は決済失敗ページを表示する。サーバーとの通信は行わない。
// GET /checkout/failed
func (h *CheckoutHandler) Failed(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordPaymentRedirect(string(payment.PageFailed), string(payment.StateFailed))
	h.renderer.Render(w, http.StatusOK, "checkout_failed", failedPage{
		Title:   "お支払いに失敗しました",
		Actions: payment.FailedActions,
	})
}

func (h *CheckoutHandler) renderThankYou(w http.ResponseWriter, r *http.Request, page payment.Page) {
	view := payment.Resolve(page, r.URL.Query(), h.config.APIBaseURL)
	h.metrics.RecordPaymentRedirect(string(view.Page), string(view.State))

	h.renderer.Render(w, http.StatusOK, "thank_you", thankYouPage{
		Title:   "ご注文ありがとうございます",
		Payment: view,
	})
}
