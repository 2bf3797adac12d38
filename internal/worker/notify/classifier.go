package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/ghnotify/internal/github"
	"github.com/hitoshi/ghnotify/internal/model"
)

// SubjectResolver はプルリクエストまたはIssueの現在状態を取得する。
// *github.Client（REST）と *github.GraphQLResolver が満たす。
type SubjectResolver interface {
	Resolve(ctx context.Context, ref model.SubjectRef) (*model.SubjectDetail, error)
}

// Classifier は通知1件を分類し、表示用のリンクとデバッグ情報を組み立てる。
// 詳細取得の失敗はその通知の結果に閉じ込め、呼び出し元にはエラーを返さない。
type Classifier struct {
	resolver SubjectResolver
	logger   *slog.Logger
}

// NewClassifier はClassifierを生成する。
func NewClassifier(resolver SubjectResolver, logger *slog.Logger) *Classifier {
	return &Classifier{resolver: resolver, logger: logger}
}

// Classify は通知を分類する。
// 詳細が取得できない場合はClassificationUnknownとリポジトリへのリンクにフォールバックする。
func (c *Classifier) Classify(ctx context.Context, n model.Notification) model.ItemResult {
	result := model.ItemResult{
		Notification:   n,
		Classification: model.ClassificationUnknown,
		Link:           model.Link{Label: n.Repository.FullName, URL: n.Repository.HTMLURL},
	}

	var label string
	switch n.Subject.Type {
	case model.SubjectTypePullRequest:
		label = "PR"
	case model.SubjectTypeIssue:
		label = "Issue"
	default:
		result.DebugNotes = append(result.DebugNotes, "Error: Unknown: "+truncatedJSON(n))
		c.logger.Info("未対応の通知種別です",
			slog.String("notification_id", n.ID),
			slog.String("subject_type", string(n.Subject.Type)),
		)
		return result
	}

	ref, err := github.ParseSubjectRef(n)
	if err != nil {
		result.Err = err
		result.DebugNotes = append(result.DebugNotes, fmt.Sprintf("Error: %s %s#?; %v", label, n.Repository.FullName, err))
		c.logger.Warn("subject URLの解析に失敗しました",
			slog.String("notification_id", n.ID),
			slog.String("subject_url", n.Subject.URL),
			slog.String("error", err.Error()),
		)
		return result
	}

	detail, err := c.resolver.Resolve(ctx, ref)
	if err != nil {
		result.Err = model.NewLookupError(ref, err)
		result.DebugNotes = append(result.DebugNotes, fmt.Sprintf("Error: %s %s#%d; %v", label, n.Repository.FullName, ref.Number, err))
		c.logger.Warn("詳細の取得に失敗しました",
			slog.String("notification_id", n.ID),
			slog.String("subject", ref.String()),
			slog.String("error", err.Error()),
		)
		return result
	}

	result.Detail = detail
	result.Classification = model.Classify(ref.Kind, detail)

	number := detail.Number
	if number == 0 {
		number = ref.Number
	}
	if detail.HTMLURL != "" {
		result.Link = model.Link{
			Label: fmt.Sprintf("%s#%d", n.Repository.FullName, number),
			URL:   detail.HTMLURL,
		}
	}

	return result
}

// truncatedJSON はリポジトリ情報を "truncated" に置き換えた通知のJSONを返す。
func truncatedJSON(n model.Notification) string {
	v := struct {
		model.Notification
		Repository string `json:"repository"`
	}{
		Notification: n,
		Repository:   "truncated",
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("{\"id\":%q}", n.ID)
	}
	return string(b)
}
