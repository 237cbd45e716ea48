// Package security はコンテンツのサニタイズと外部URLへの安全なアクセスを提供する。
//
// 管理画面から投稿されるHTML本文は許可リスト方式のbluemondayポリシーで
// サニタイズしてから保存する。
package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はリッチテキスト本文を許可タグのみのHTMLに変換する。
	// 見出しのid属性は目次のアンカーとして保持する。
	Sanitize(rawHTML string) string

	// StripTags はすべてのタグを除去したプレーンテキストを返す。
	StripTags(raw string) string
}

// headingIDPattern は見出しに付与できるid属性の形式。
var headingIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type contentSanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 見出し: h2〜h4（id属性はslug形式のみ）
//   - ブロック: p, br, hr, blockquote, pre, code, figure, figcaption, 表, リスト
//   - インライン: strong, em, b, i, u, s, sub, sup, mark
//   - a: href（http, https, mailto, 相対URL）、外部リンクにtarget="_blank"とrel="noreferrer noopener"
//   - img: src（https, 相対URL）、alt, title, width, height
//   - script, iframe, style, on*属性は許可リストに含めないため除去される
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "blockquote", "pre", "code",
		"figure", "figcaption",
		"strong", "em", "b", "i", "u", "s", "sub", "sup", "mark",
		"h2", "h3", "h4",
	)
	p.AllowAttrs("id").Matching(headingIDPattern).OnElements("h2", "h3", "h4")
	p.AllowLists()
	p.AllowTables()

	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnFullyQualifiedLinks(true)

	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowAttrs("width", "height").Matching(bluemonday.Integer).OnElements("img")

	return &contentSanitizer{
		rich:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.rich.Sanitize(rawHTML)
}

// StripTags はタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
// 戻り値はHTMLエスケープされていないため、HTMLに埋め込む側でエスケープする。
func (s *contentSanitizer) StripTags(raw string) string {
	text := s.plain.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(text))
}
