// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は読書記録・引用・カタログ情報などの利用者入力から
// 危険なマークアップを取り除く。bluemondayの許可リストポリシーを使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は利用者入力のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は感想・メモなどの長文を、段落や強調などの最小限のタグだけ残してサニタイズする。
	// script, iframe, styleタグ、on*イベント属性、style属性、リンクは除去される。
	Sanitize(raw string) string

	// StripTags は名前・タイトルなどの単一行フィールドから全てのタグを除去したプレーンテキストを返す。
	// 前後の空白は除去する。
	StripTags(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 長文: p, br, ul, ol, li, blockquote, strong, em のみ許可（属性はすべて不可）
//   - 単一行: タグをすべて除去
func NewTextSanitizer() *textSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em",
	)

	return &textSanitizer{
		rich:  rich,
		plain: bluemonday.StrictPolicy(),
	}
}

// Sanitize は長文をサニタイズする。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// StripTags はタグを除去したプレーンテキストを返す。
// JSONでそのまま返すため、bluemondayがエスケープした実体参照は元の文字に戻す。
func (s *textSanitizer) StripTags(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(raw)))
}

var _ TextSanitizer = (*textSanitizer)(nil)
