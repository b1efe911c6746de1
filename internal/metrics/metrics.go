// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアント、決済リダイレクト処理、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordBackendRequest(method string, statusCode int, duration time.Duration)
	RecordPaymentRedirect(page, state string)
	RecordHTTPRequest(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendRequests *prometheus.CounterVec
	backendLatency  prometheus.Histogram
	paymentRedirect *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_backend_requests_total",
			Help: "バックエンドAPIリクエストの合計数（メソッド・ステータス別）",
		}, []string{"method", "status_code"}),
		backendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_backend_latency_seconds",
			Help:    "バックエンドAPIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		paymentRedirect: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_payment_redirect_total",
			Help: "決済リダイレクトページの到達数（ページ・状態別）",
		}, []string{"page", "state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "処理したHTTPリクエストの合計数（ステータス別）",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.backendRequests,
		c.backendLatency,
		c.paymentRedirect,
		c.httpRequests,
	)

	return c
}

// RecordBackendRequest はバックエンドAPIリクエストの結果を記録する。
// 通信エラーでステータスコードが得られない場合は0を渡す。
func (c *Collector) RecordBackendRequest(method string, statusCode int, duration time.Duration) {
	c.backendRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.backendLatency.Observe(duration.Seconds())
}

// RecordPaymentRedirect は決済リダイレクトページの表示状態を記録する。
func (c *Collector) RecordPaymentRedirect(page, state string) {
	c.paymentRedirect.WithLabelValues(page, state).Inc()
}

// RecordHTTPRequest は処理したHTTPリクエストのステータスコードを記録する。
func (c *Collector) RecordHTTPRequest(statusCode int) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。
// メトリクスを必要としないテストやツールで使用する。
type Nop struct{}

func (Nop) RecordBackendRequest(string, int, time.Duration) {}
func (Nop) RecordPaymentRedirect(string, string)            {}
func (Nop) RecordHTTPRequest(int)                           {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
