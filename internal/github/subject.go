package github

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/ghnotify/internal/model"
)

// ParseSubjectRef は通知から詳細取得のキーを組み立てる。
// owner/repoは通知のリポジトリ情報、番号はsubject.urlの末尾のパスセグメントから取り出す。
// subject.typeがPullRequestとIssue以外の場合、または番号が取り出せない場合はエラーを返す。
func ParseSubjectRef(n model.Notification) (model.SubjectRef, error) {
	var kind model.SubjectKind
	switch n.Subject.Type {
	case model.SubjectTypePullRequest:
		kind = model.SubjectKindPullRequest
	case model.SubjectTypeIssue:
		kind = model.SubjectKindIssue
	default:
		return model.SubjectRef{}, fmt.Errorf("unsupported subject type %q", n.Subject.Type)
	}

	owner := n.Repository.Owner.Login
	repo := n.Repository.Name
	if owner == "" || repo == "" {
		// owner.login が欠けている場合は full_name から補完する
		if o, r, ok := strings.Cut(n.Repository.FullName, "/"); ok {
			owner, repo = o, r
		}
	}

	number, err := subjectNumber(n.Subject.URL)
	if err != nil {
		ref := model.SubjectRef{Owner: owner, Repo: repo, Kind: kind}
		return model.SubjectRef{}, model.NewInvalidSubjectURLError(ref, n.Subject.URL, err)
	}

	return model.SubjectRef{
		Owner:  owner,
		Repo:   repo,
		Number: number,
		Kind:   kind,
	}, nil
}

// subjectNumber はURLの末尾のパスセグメントを番号として解析する。
func subjectNumber(rawURL string) (int, error) {
	trimmed := strings.TrimRight(rawURL, "/")
	if trimmed == "" {
		return 0, errors.New("empty url")
	}

	last := trimmed[strings.LastIndex(trimmed, "/")+1:]
	number, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("last path segment %q is not a number", last)
	}
	if number <= 0 {
		return 0, fmt.Errorf("invalid number %d", number)
	}
	return number, nil
}
