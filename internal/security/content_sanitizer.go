// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer は商品説明のHTMLをサニタイズする。
// 商品説明はリッチテキストエディタで作成されたHTMLとしてバックエンドに保存されており、
// 管理画面に描画する前に許可リストベースのポリシーで安全なタグと属性のみを残す。
package security

import (
	"html/template"
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はHTMLコンテンツのサニタイズ機能のインターフェース。
type ContentSanitizer interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
	// SanitizeHTML はSanitizeの結果をテンプレートへそのまま埋め込める形で返す。
	SanitizeHTML(rawHTML string) template.HTML
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーは並行に使用できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, h2, h3, h4, ul, ol, li, blockquote, strong, em, u, s, a, img
//   - script, iframe, style および全てのon*イベント属性は除去
//   - imgのsrc属性: httpsスキームのみ許可
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "h2", "h3", "h4",
		"ul", "ol", "li", "blockquote",
		"strong", "em", "u", "s",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// SanitizeHTML はサニタイズ済みHTMLをtemplate.HTMLとして返す。
func (s *contentSanitizer) SanitizeHTML(rawHTML string) template.HTML {
	return template.HTML(s.Sanitize(rawHTML))
}
