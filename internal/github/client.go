// Package github はGitHub APIクライアントを提供する。
// 通知一覧の取得（REST）と、プルリクエスト・Issueの詳細取得（RESTまたはGraphQL）を扱う。
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/ghnotify/internal/model"
)

const (
	// DefaultAPIURL はGitHub REST APIのベースURL。
	DefaultAPIURL = "https://api.github.com"
	// DefaultGraphQLURL はGitHub GraphQL APIのエンドポイント。
	DefaultGraphQLURL = "https://api.github.com/graphql"

	apiVersion  = "2022-11-28"
	mediaType   = "application/vnd.github+json"
	userAgent   = "ghnotify/1.0"
	maxBodySize = 10 << 20

	// 1ページあたりの最大件数（GitHub APIの上限）
	maxPerPage = 50
)

// APIError はGitHub APIの非2xxレスポンス。
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Client はGitHub REST APIクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient はClientを生成する。baseURLが空の場合はDefaultAPIURLを使用する。
func NewClient(httpClient *http.Client, baseURL, token string, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger,
	}
}

// NotificationQuery は通知一覧の取得条件。
type NotificationQuery struct {
	// Since より後に更新された通知のみを取得する。If-Modified-Sinceにも使用する。
	Since time.Time
	// Before より前に更新された通知のみを取得する。ゼロ値の場合は送信しない。
	Before time.Time
	// All がtrueの場合は既読の通知も含める。
	All bool
	// PerPage は1ページあたりの件数。0以下の場合は50。
	PerPage int
	// MaxPages は追跡するページ数の上限。0以下の場合は無制限。
	MaxPages int
}

// NotificationPage は通知一覧の取得結果。
type NotificationPage struct {
	Notifications []model.Notification
	// PollInterval はX-Poll-Intervalヘッダーの値。ヘッダーがない場合は0。
	PollInterval time.Duration
	// NotModified は304レスポンスだったことを表す。この場合Notificationsは空。
	NotModified bool
	// Truncated はMaxPagesに達して残りのページを取得しなかったことを表す。
	Truncated bool
}

// ListNotifications はGET /notificationsを実行し、Linkヘッダーのnextを追跡して全ページを取得する。
func (c *Client) ListNotifications(ctx context.Context, q NotificationQuery) (*NotificationPage, error) {
	perPage := q.PerPage
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	params := url.Values{}
	params.Set("since", q.Since.UTC().Format(time.RFC3339))
	if !q.Before.IsZero() {
		params.Set("before", q.Before.UTC().Format(time.RFC3339))
	}
	if q.All {
		params.Set("all", "true")
	}
	params.Set("per_page", strconv.Itoa(perPage))

	page := &NotificationPage{Notifications: []model.Notification{}}
	next := c.baseURL + "/notifications?" + params.Encode()

	for n := 0; next != ""; n++ {
		if q.MaxPages > 0 && n >= q.MaxPages {
			page.Truncated = true
			c.logger.Warn("通知一覧のページ数が上限に達しました",
				slog.Int("max_pages", q.MaxPages),
				slog.Int("fetched", len(page.Notifications)),
			)
			break
		}

		req, err := c.newRequest(ctx, http.MethodGet, next)
		if err != nil {
			return nil, err
		}
		// 条件付きGETは先頭ページのみ
		if n == 0 {
			req.Header.Set("If-Modified-Since", q.Since.UTC().Format(http.TimeFormat))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("GET /notifications: %w", err)
		}

		if n == 0 {
			page.PollInterval = parsePollInterval(resp.Header.Get("X-Poll-Interval"))
		}

		if resp.StatusCode == http.StatusNotModified {
			resp.Body.Close()
			page.NotModified = true
			return page, nil
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := newAPIError(resp, "/notifications")
			resp.Body.Close()
			return nil, apiErr
		}

		var items []model.Notification
		err = json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&items)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("通知一覧のデコードに失敗: %w", err)
		}

		page.Notifications = append(page.Notifications, items...)
		next = nextPageURL(resp.Header.Get("Link"))
	}

	return page, nil
}

// pullRequestResponse はGET /repos/{owner}/{repo}/pulls/{n} のレスポンスのうち使用するフィールド。
type pullRequestResponse struct {
	Number  int    `json:"number"`
	State   string `json:"state"`
	Merged  bool   `json:"merged"`
	Draft   bool   `json:"draft"`
	HTMLURL string `json:"html_url"`
}

// issueResponse はGET /repos/{owner}/{repo}/issues/{n} のレスポンスのうち使用するフィールド。
type issueResponse struct {
	Number  int    `json:"number"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
}

// Resolve はRESTでプルリクエストまたはIssueの現在状態を取得する。
// 対象が存在しない場合はmodel.ErrSubjectNotFoundをラップしたエラーを返す。
func (c *Client) Resolve(ctx context.Context, ref model.SubjectRef) (*model.SubjectDetail, error) {
	switch ref.Kind {
	case model.SubjectKindPullRequest:
		var pr pullRequestResponse
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d", url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), ref.Number)
		if err := c.getJSON(ctx, path, &pr); err != nil {
			return nil, err
		}
		return &model.SubjectDetail{
			State:   pr.State,
			Merged:  pr.Merged,
			Draft:   pr.Draft,
			HTMLURL: pr.HTMLURL,
			Number:  pr.Number,
		}, nil

	case model.SubjectKindIssue:
		var issue issueResponse
		path := fmt.Sprintf("/repos/%s/%s/issues/%d", url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), ref.Number)
		if err := c.getJSON(ctx, path, &issue); err != nil {
			return nil, err
		}
		return &model.SubjectDetail{
			State:   issue.State,
			HTMLURL: issue.HTMLURL,
			Number:  issue.Number,
		}, nil
	}

	return nil, fmt.Errorf("unsupported subject kind %q", ref.Kind)
}

// getJSON はGETリクエストを実行し、200のレスポンスボディをoutにデコードする。
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+path)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := newAPIError(resp, path)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", model.ErrSubjectNotFound, apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return fmt.Errorf("GET %s: レスポンスのデコードに失敗: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// newAPIError はレスポンスからAPIErrorを生成する。ボディのmessageフィールドがあれば含める。
func newAPIError(resp *http.Response, path string) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     resp.Request.Method,
		Path:       path,
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}

// parsePollInterval はX-Poll-Intervalヘッダー（秒）を解析する。不正な値や0以下は0を返す。
func parsePollInterval(v string) time.Duration {
	if v == "" {
		return 0
	}
	sec, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || sec <= 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}

// nextPageURL はLinkヘッダーから rel="next" のURLを取り出す。
// 例: <https://api.github.com/notifications?page=2>; rel="next", <...>; rel="last"
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}

		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}

		for _, attr := range segments[1:] {
			attr = strings.TrimSpace(attr)
			if attr == `rel="next"` || attr == "rel=next" {
				return strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
			}
		}
	}
	return ""
}
