// Package slack はSlack Incoming Webhook向けのメッセージ組み立てと送信を提供する。
package slack

// ブロック種別
const (
	BlockTypeHeader  = "header"
	BlockTypeSection = "section"
)

// テキストオブジェクト種別
const (
	TextTypePlain    = "plain_text"
	TextTypeMarkdown = "mrkdwn"
)

// Block Kitのテキスト上限。超えるとWebhookがメッセージ全体を拒否する。
const (
	headerMaxRunes  = 150
	sectionMaxRunes = 3000
)

// Message はWebhookに送信するペイロード。
type Message struct {
	Blocks []Block `json:"blocks"`
}

// Block はBlock Kitのブロック。本アプリではheaderとsectionのみを使用する。
type Block struct {
	Type string      `json:"type"`
	Text *TextObject `json:"text,omitempty"`
}

// TextObject はBlock Kitのテキストオブジェクト。
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// HeaderBlock はplain_textのheaderブロックを生成する。絵文字コードを展開する。
func HeaderBlock(text string) Block {
	return Block{
		Type: BlockTypeHeader,
		Text: &TextObject{Type: TextTypePlain, Text: text, Emoji: true},
	}
}

// SectionBlock はmrkdwnのsectionブロックを生成する。
func SectionBlock(text string) Block {
	return Block{
		Type: BlockTypeSection,
		Text: &TextObject{Type: TextTypeMarkdown, Text: text},
	}
}
