package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	// errorBodyLimit はエラー時に読み込む応答ボディの上限。
	errorBodyLimit = 4 << 10
	// errorSnippetRunes はエラーメッセージに含める応答ボディの文字数。
	errorSnippetRunes = 200
)

// Snippeter は応答ボディを短いプレーンテキストに変換する。
type Snippeter interface {
	Snippet(raw string, maxRunes int) string
}

// DeliveryError はWebhookが2xx以外を返したことを表す。
type DeliveryError struct {
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("slack webhook returned %d", e.StatusCode)
	}
	return fmt.Sprintf("slack webhook returned %d: %s", e.StatusCode, e.Body)
}

// WebhookSender はIncoming WebhookにメッセージをPOSTする。
type WebhookSender struct {
	httpClient *http.Client
	webhookURL string
	snippeter  Snippeter
}

// NewWebhookSender はWebhookSenderを生成する。
func NewWebhookSender(httpClient *http.Client, webhookURL string, snippeter Snippeter) *WebhookSender {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebhookSender{
		httpClient: httpClient,
		webhookURL: webhookURL,
		snippeter:  snippeter,
	}
}

// Send はメッセージをJSONでPOSTする。2xx以外はDeliveryErrorを返す。
// 応答ボディは解釈しない。WebhookのURLは秘密情報のため、エラーには含めない。
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("メッセージのエンコードに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.New("webhookリクエストの作成に失敗しました")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return redactURLError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		snippet := string(raw)
		if s.snippeter != nil {
			snippet = s.snippeter.Snippet(snippet, errorSnippetRunes)
		}
		return &DeliveryError{StatusCode: resp.StatusCode, Body: snippet}
	}

	// コネクション再利用のためボディを読み切る
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
	return nil
}

// redactURLError は*url.ErrorのURLを伏せ字にする。
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: "[redacted]", Err: urlErr.Err}
	}
	return err
}
