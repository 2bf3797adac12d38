package slack

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/ghnotify/internal/model"
)

// fallbackTimeLayout はSlackの日時表示が使えないクライアント向けの表記（YYYY-MM-DD HH:mm:ss）。
const fallbackTimeLayout = "2006-01-02 15:04:05"

// デバッグ情報ブロックの前後に付けるコードブロックの記法
const (
	debugPrefix = "Debug: ```\n"
	debugSuffix = "\n```"
)

// mrkdwnEscaper はmrkdwnで制御文字として扱われる &, <, > をエスケープする。
var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Renderer は分類結果をSlackメッセージに変換する。副作用を持たない。
type Renderer struct {
	loc *time.Location
}

// NewRenderer はRendererを生成する。locはフォールバック表記のタイムゾーン（nilの場合はUTC）。
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

// Render は1件の分類結果からメッセージを組み立てる。
//
//  1. header: ":<分類>: <タイトル>"
//  2. section: "<リンク> (<理由>)"
//  3. section: 更新日時（既読日時があれば追記）
//  4. section: デバッグ情報（ある場合のみ）
func (r *Renderer) Render(item model.ItemResult) Message {
	n := item.Notification

	blocks := []Block{
		HeaderBlock(truncateRunes(fmt.Sprintf(":%s: %s", item.Classification, n.Subject.Title), headerMaxRunes)),
		SectionBlock(truncateRunes(fmt.Sprintf("%s (%s)", FormatLink(item.Link), EscapeMrkdwn(n.Reason)), sectionMaxRunes)),
	}

	timestamps := "- Updated at " + r.formatDate(n.UpdatedAt)
	if n.LastReadAt != nil {
		timestamps += "\n- Last Read at " + r.formatDate(*n.LastReadAt)
	}
	blocks = append(blocks, SectionBlock(timestamps))

	if len(item.DebugNotes) > 0 {
		budget := sectionMaxRunes - utf8.RuneCountInString(debugPrefix) - utf8.RuneCountInString(debugSuffix)
		body := truncateEscaped(EscapeMrkdwn(strings.Join(item.DebugNotes, "\n")), budget)
		blocks = append(blocks, SectionBlock(debugPrefix+body+debugSuffix))
	}

	return Message{Blocks: blocks}
}

// formatDate はSlackの日時トークンを生成する。閲覧者のタイムゾーンで表示され、
// 非対応クライアントでは設定タイムゾーンでのフォールバック表記が表示される。
func (r *Renderer) formatDate(t time.Time) string {
	return fmt.Sprintf("<!date^%d^{date_pretty} {time_secs}|%s>", t.Unix(), t.In(r.loc).Format(fallbackTimeLayout))
}

// FormatLink はmrkdwnのリンク "<url|label>" を生成する。
func FormatLink(link model.Link) string {
	if link.URL == "" {
		return EscapeMrkdwn(link.Label)
	}
	return fmt.Sprintf("<%s|%s>", link.URL, EscapeMrkdwn(link.Label))
}

// EscapeMrkdwn はmrkdwnの制御文字をエスケープする。
func EscapeMrkdwn(s string) string {
	return mrkdwnEscaper.Replace(s)
}

// truncateRunes はsをmaxRunes文字以内に切り詰める。切り詰めた場合は末尾を "…" にする。
func truncateRunes(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes-1]) + "…"
}

// truncateEscaped はエスケープ済みのsを切り詰める。途中で切れた文字参照（"&am" など）は取り除く。
func truncateEscaped(s string, maxRunes int) string {
	t := truncateRunes(s, maxRunes)
	if t == s {
		return s
	}
	body := strings.TrimSuffix(t, "…")
	if i := strings.LastIndexByte(body, '&'); i >= 0 && !strings.Contains(body[i:], ";") {
		body = body[:i]
	}
	return body + "…"
}
