package handler

import (
	"log/slog"

	"github.com/hitoshi/storefront/internal/apiclient"
	"github.com/hitoshi/storefront/internal/payment"
)

func newTestCapturer(api *apiclient.Client, logger *slog.Logger) CapturerInterface {
	return payment.NewCapturer(api, "http://shop.test/checkout/thank-you", logger)
}
