// Package payment は決済プロバイダーからのリダイレクト後に表示するページの状態を扱う。
package payment

import (
	"net/url"
	"strings"
)

// Page はリダイレクト先ページの種別。
type Page string

const (
	PageThankYou       Page = "thank-you"
	PagePayPalThankYou Page = "paypal-thank-you"
	PageFailed         Page = "failed"
)

// State はリダイレクトページの表示状態。
type State string

const (
	StateAwaitingQuery State = "awaiting_query"
	StateHasInvoice    State = "has_invoice"
	StateNoInvoice     State = "no_invoice"
	StateCapturing     State = "capturing"
	StateSuccess       State = "success"
	StateFailed        State = "failed"
)

// View はサンクスページの描画内容。
type View struct {
	Page        Page
	State       State
	Invoice     string
	DownloadURL string
}

// Resolve はクエリ文字列のinvoiceパラメータから表示状態を決定する。
// invoiceの形式は検証せず、ダウンロードURLの組み立てにのみ使う。
func Resolve(page Page, query url.Values, apiBase string) View {
	invoice := query.Get("invoice")
	if invoice == "" {
		return View{Page: page, State: StateNoInvoice}
	}
	return View{
		Page:        page,
		State:       StateHasInvoice,
		Invoice:     invoice,
		DownloadURL: InvoiceDownloadURL(apiBase, invoice),
	}
}

// InvoiceDownloadURL は請求書ファイルのダウンロードURLを返す。
func InvoiceDownloadURL(apiBase, invoice string) string {
	return strings.TrimRight(apiBase, "/") + "/invoices/" + url.PathEscape(invoice)
}

// Action は決済失敗ページのナビゲーション操作。
type Action struct {
	Label string
	Href  string
}

// FailedActions は決済失敗ページが提示する操作。サーバーとの通信は行わない。
var FailedActions = []Action{
	{Label: "もう一度試す", Href: "/checkout"},
	{Label: "カートに戻る", Href: "/cart"},
}
