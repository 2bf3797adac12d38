// Package model はドメインモデルを定義する。
package model

import "time"

// SubjectType は通知対象（subject）の種別を表す。
// GitHub APIの subject.type の値をそのまま保持する。
type SubjectType string

const (
	// SubjectTypePullRequest はプルリクエストに関する通知。
	SubjectTypePullRequest SubjectType = "PullRequest"
	// SubjectTypeIssue はIssueに関する通知。
	SubjectTypeIssue SubjectType = "Issue"
)

// Notification はGitHubの通知1件を表す。
// GET /notifications のレスポンス要素に対応し、サイクル内でのみ扱う一時データ。
type Notification struct {
	ID         string     `json:"id"`
	Reason     string     `json:"reason"`
	Unread     bool       `json:"unread"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastReadAt *time.Time `json:"last_read_at"`
	Subject    Subject    `json:"subject"`
	Repository Repository `json:"repository"`
	URL        string     `json:"url,omitempty"`
}

// Subject は通知対象の要約。
// URLは対象のAPI URLで、末尾のパスセグメントが番号となる。
type Subject struct {
	Title            string      `json:"title"`
	URL              string      `json:"url"`
	LatestCommentURL string      `json:"latest_comment_url"`
	Type             SubjectType `json:"type"`
}

// Repository は通知が属するリポジトリ。
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Owner    Owner  `json:"owner"`
}

// Owner はリポジトリのオーナー。
type Owner struct {
	Login string `json:"login"`
}
