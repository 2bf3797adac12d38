package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部サービスの応答ボディをログやエラーに載せられる短いプレーンテキストにする。
// プロキシやロードバランサーが返すHTMLのエラーページからタグを取り除くために使用する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicy（全タグ除去）を使うTextSanitizerを生成する。
// 除去したタグの位置には空白を入れ、ブロック要素の文字列同士が連結しないようにする。
func NewTextSanitizer() *TextSanitizer {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return &TextSanitizer{policy: p}
}

// Snippet はタグを除去し、空白を1つにまとめ、maxRunes文字で切り詰めたテキストを返す。
// 切り詰めた場合は末尾に "…" を付ける。
func (s *TextSanitizer) Snippet(raw string, maxRunes int) string {
	// StrictPolicyはテキストをHTMLエスケープして返すため元に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}
