package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/machinebox/graphql"

	"github.com/hitoshi/ghnotify/internal/model"
)

const pullRequestQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
	repository(owner: $owner, name: $repo) {
		pullRequest(number: $number) {
			number
			state
			merged
			isDraft
			url
		}
	}
}`

const issueQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
	repository(owner: $owner, name: $repo) {
		issue(number: $number) {
			number
			state
			url
		}
	}
}`

type graphqlPullRequest struct {
	Number  int    `json:"number"`
	State   string `json:"state"`
	Merged  bool   `json:"merged"`
	IsDraft bool   `json:"isDraft"`
	URL     string `json:"url"`
}

type graphqlIssue struct {
	Number int    `json:"number"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

// GraphQLResolver はGitHub GraphQL APIでプルリクエストとIssueの状態を取得する。
// RESTの2エンドポイントを1つのクエリ形式にまとめたもので、Resolveの結果はRESTと同じ形になる。
type GraphQLResolver struct {
	gql   *graphql.Client
	token string
}

// NewGraphQLResolver はGraphQLResolverを生成する。endpointが空の場合はDefaultGraphQLURLを使用する。
func NewGraphQLResolver(httpClient *http.Client, endpoint, token string) *GraphQLResolver {
	if endpoint == "" {
		endpoint = DefaultGraphQLURL
	}

	opts := []graphql.ClientOption{}
	if httpClient != nil {
		opts = append(opts, graphql.WithHTTPClient(httpClient))
	}

	return &GraphQLResolver{
		gql:   graphql.NewClient(endpoint, opts...),
		token: token,
	}
}

// Resolve は対象の現在状態を取得する。
// GraphQLの状態値（OPEN/CLOSED/MERGED）はRESTと同じ小文字に正規化し、MERGEDはclosedかつmergedとして扱う。
func (r *GraphQLResolver) Resolve(ctx context.Context, ref model.SubjectRef) (*model.SubjectDetail, error) {
	switch ref.Kind {
	case model.SubjectKindPullRequest:
		var resp struct {
			Repository *struct {
				PullRequest *graphqlPullRequest `json:"pullRequest"`
			} `json:"repository"`
		}
		if err := r.run(ctx, pullRequestQuery, ref, &resp); err != nil {
			return nil, err
		}
		if resp.Repository == nil || resp.Repository.PullRequest == nil {
			return nil, fmt.Errorf("pull request %s: %w", ref, model.ErrSubjectNotFound)
		}

		pr := resp.Repository.PullRequest
		state := strings.ToLower(pr.State)
		if state == "merged" {
			state = model.SubjectStateClosed
		}
		return &model.SubjectDetail{
			State:   state,
			Merged:  pr.Merged,
			Draft:   pr.IsDraft,
			HTMLURL: pr.URL,
			Number:  pr.Number,
		}, nil

	case model.SubjectKindIssue:
		var resp struct {
			Repository *struct {
				Issue *graphqlIssue `json:"issue"`
			} `json:"repository"`
		}
		if err := r.run(ctx, issueQuery, ref, &resp); err != nil {
			return nil, err
		}
		if resp.Repository == nil || resp.Repository.Issue == nil {
			return nil, fmt.Errorf("issue %s: %w", ref, model.ErrSubjectNotFound)
		}

		issue := resp.Repository.Issue
		return &model.SubjectDetail{
			State:   strings.ToLower(issue.State),
			HTMLURL: issue.URL,
			Number:  issue.Number,
		}, nil
	}

	return nil, fmt.Errorf("unsupported subject kind %q", ref.Kind)
}

// run は認証ヘッダー付きでクエリを実行する。
// GitHubは存在しない対象を "Could not resolve to ..." エラーで返すため、ErrSubjectNotFoundに変換する。
func (r *GraphQLResolver) run(ctx context.Context, query string, ref model.SubjectRef, resp any) error {
	req := graphql.NewRequest(query)
	req.Var("owner", ref.Owner)
	req.Var("repo", ref.Repo)
	req.Var("number", ref.Number)
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("User-Agent", userAgent)

	if err := r.gql.Run(ctx, req, resp); err != nil {
		if strings.Contains(err.Error(), "Could not resolve to") {
			return fmt.Errorf("%s: %w: %w", ref, model.ErrSubjectNotFound, err)
		}
		return fmt.Errorf("graphql %s: %w", ref, err)
	}
	return nil
}
