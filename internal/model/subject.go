package model

import "fmt"

// SubjectKind は詳細取得の対象種別。
type SubjectKind string

const (
	// SubjectKindPullRequest はプルリクエスト。
	SubjectKindPullRequest SubjectKind = "pull-request"
	// SubjectKindIssue はIssue。
	SubjectKindIssue SubjectKind = "issue"
)

// SubjectRef は詳細取得のキー（owner/repo/番号/種別）。
type SubjectRef struct {
	Owner  string
	Repo   string
	Number int
	Kind   SubjectKind
}

// String は "owner/repo#123" 形式の表記を返す。
// 番号がない場合は owner/repo のみ。
func (r SubjectRef) String() string {
	if r.Number <= 0 {
		return r.Owner + "/" + r.Repo
	}
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// IsZero はowner・repo・番号がいずれも未設定かを返す。
func (r SubjectRef) IsZero() bool {
	return r.Owner == "" && r.Repo == "" && r.Number == 0
}

// 詳細取得で返される状態値
const (
	SubjectStateOpen   = "open"
	SubjectStateClosed = "closed"
)

// SubjectDetail はプルリクエストまたはIssueの現在状態のスナップショット。
// Merged と Draft はプルリクエストの場合のみ意味を持つ。
type SubjectDetail struct {
	State   string
	Merged  bool
	Draft   bool
	HTMLURL string
	Number  int
}

// Classification は通知の分類結果。Slackの絵文字名としてそのまま使用する。
type Classification string

const (
	ClassificationDraftPR     Classification = "draft-pr"
	ClassificationMerged      Classification = "merged"
	ClassificationPROpen      Classification = "pr-open"
	ClassificationPRClosed    Classification = "pr-closed"
	ClassificationIssueOpen   Classification = "issue-open"
	ClassificationIssueClosed Classification = "issue-closed"
	// ClassificationUnknown は詳細が取得できない場合や未対応の種別に使うフォールバック。
	ClassificationUnknown Classification = "question"
)

// Classify は詳細情報から分類を決定する。
// 優先順位: draft → merged → open → closed。detailがnil、または状態が
// 未知の値の場合はClassificationUnknownを返す。
func Classify(kind SubjectKind, detail *SubjectDetail) Classification {
	if detail == nil {
		return ClassificationUnknown
	}

	switch kind {
	case SubjectKindPullRequest:
		switch {
		case detail.Draft:
			return ClassificationDraftPR
		case detail.Merged:
			return ClassificationMerged
		case detail.State == SubjectStateOpen:
			return ClassificationPROpen
		case detail.State == SubjectStateClosed:
			return ClassificationPRClosed
		}
	case SubjectKindIssue:
		switch detail.State {
		case SubjectStateOpen:
			return ClassificationIssueOpen
		case SubjectStateClosed:
			return ClassificationIssueClosed
		}
	}

	return ClassificationUnknown
}

// Link は表示ラベルと遷移先URLの組。
type Link struct {
	Label string
	URL   string
}
