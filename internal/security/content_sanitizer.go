// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は要約コラボレーターが返すHTML断片と
// フィード記事のサマリーをサニタイズし、ダイジェスト保存前および
// メール送信前のコンテンツを安全に保つ。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// SanitizeFragment はダイジェスト本文向けのHTML断片をサニタイズする。
	// 許可タグ（h1-h3, p, br, hr, ul, ol, li, blockquote, strong, em, a）のみを
	// 通過させ、script, style, iframe, formタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeFragment(rawHTML string) string

	// StripToText はHTMLからすべてのタグを除去し、連続する空白を1つに
	// 正規化したプレーンテキストを返す。記事スニペットの保存前処理に使用する。
	StripToText(rawHTML string) string
}

// whitespaceRe は連続する空白文字（改行・タブ含む）にマッチする。
var whitespaceRe = regexp.MustCompile(`\s+`)

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	fragment *bluemonday.Policy
	strict   *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 許可タグ: h1, h2, h3, p, br, hr, ul, ol, li, blockquote, strong, em, a
//   - 禁止タグ: script, style, iframe, form および全てのon*イベント属性
//   - aタグ: href属性を許可し、target="_blank" と rel="noopener noreferrer" を自動付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// 要約コラボレーターの出力に現れるダイジェスト構造タグのみを許可する。
	// script, style, iframe, form等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される。
	p.AllowElements(
		"h1", "h2", "h3",
		"p", "br", "hr",
		"ul", "ol", "li",
		"blockquote", "strong", "em",
	)

	// aタグ: ソースリンクを保持する。相対URLはメール本文で解決できないため不許可。
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		fragment: p,
		strict:   bluemonday.StrictPolicy(),
	}
}

// SanitizeFragment はダイジェスト本文向けのHTML断片をサニタイズする。
func (s *contentSanitizer) SanitizeFragment(rawHTML string) string {
	return s.fragment.Sanitize(rawHTML)
}

// StripToText はHTMLからタグを除去し空白を正規化したテキストを返す。
func (s *contentSanitizer) StripToText(rawHTML string) string {
	text := s.strict.Sanitize(rawHTML)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
