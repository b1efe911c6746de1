package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/storefront/internal/apiclient"
)

// FailedPath は決済失敗ページのパス。
const FailedPath = "/checkout/failed"

// ErrMissingCaptureToken はクエリにPayPalトークンが無い場合のエラー。
var ErrMissingCaptureToken = errors.New("paypal token is missing")

// CaptureResult はキャプチャの結果と遷移先。
type CaptureResult struct {
	State       State
	RedirectURL string
	Err         error
}

// Capturer はPayPalの承認済み支払いをバックエンドでキャプチャする。
type Capturer struct {
	api        *apiclient.Client
	successURL string
	logger     *slog.Logger
}

// NewCapturer はCapturerを生成する。successURLはキャプチャ成功時の遷移先。
func NewCapturer(api *apiclient.Client, successURL string, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{api: api, successURL: successURL, logger: logger}
}

type captureRequest struct {
	Token string `json:"token"`
}

// Capture はtokenでキャプチャを要求し、successフィールドで遷移先を決める。
// 通信失敗やsuccess=false、トークン欠落はいずれも失敗ページへ遷移する。
func (c *Capturer) Capture(ctx context.Context, token string) CaptureResult {
	if token == "" {
		return CaptureResult{State: StateFailed, RedirectURL: FailedPath, Err: ErrMissingCaptureToken}
	}

	env, err := c.api.Post(ctx, "/payments/paypal/capture", captureRequest{Token: token}, nil)
	if err != nil {
		c.logger.Warn("paypal capture failed", slog.String("error", err.Error()))
		return CaptureResult{State: StateFailed, RedirectURL: FailedPath, Err: err}
	}
	if !env.Succeeded() {
		c.logger.Warn("paypal capture was rejected", slog.String("message", env.Message))
		return CaptureResult{State: StateFailed, RedirectURL: FailedPath}
	}

	return CaptureResult{State: StateSuccess, RedirectURL: c.successURL}
}
