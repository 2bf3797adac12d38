package github

import (
	"errors"
	"testing"

	"github.com/hitoshi/ghnotify/internal/model"
)

func testNotification(subjectType model.SubjectType, subjectURL string) model.Notification {
	return model.Notification{
		Subject: model.Subject{Title: "t", URL: subjectURL, Type: subjectType},
		Repository: model.Repository{
			Name:     "hello",
			FullName: "octo/hello",
			HTMLURL:  "https://github.com/octo/hello",
			Owner:    model.Owner{Login: "octo"},
		},
	}
}

func TestParseSubjectRef(t *testing.T) {
	tests := []struct {
		name string
		n    model.Notification
		want model.SubjectRef
	}{
		{
			"PullRequest",
			testNotification(model.SubjectTypePullRequest, "https://api.github.com/repos/octo/hello/pulls/42"),
			model.SubjectRef{Owner: "octo", Repo: "hello", Number: 42, Kind: model.SubjectKindPullRequest},
		},
		{
			"Issue",
			testNotification(model.SubjectTypeIssue, "https://api.github.com/repos/octo/hello/issues/7"),
			model.SubjectRef{Owner: "octo", Repo: "hello", Number: 7, Kind: model.SubjectKindIssue},
		},
		{
			"末尾スラッシュ",
			testNotification(model.SubjectTypeIssue, "https://api.github.com/repos/octo/hello/issues/7/"),
			model.SubjectRef{Owner: "octo", Repo: "hello", Number: 7, Kind: model.SubjectKindIssue},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubjectRef(tt.n)
			if err != nil {
				t.Fatalf("ParseSubjectRef がエラーを返した: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSubjectRef = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// owner.loginが欠けている場合はfull_nameから補完することを検証
func TestParseSubjectRef_FallsBackToFullName(t *testing.T) {
	n := testNotification(model.SubjectTypeIssue, "https://api.github.com/repos/octo/hello/issues/3")
	n.Repository.Owner.Login = ""

	got, err := ParseSubjectRef(n)
	if err != nil {
		t.Fatalf("ParseSubjectRef がエラーを返した: %v", err)
	}
	if got.Owner != "octo" || got.Repo != "hello" {
		t.Errorf("owner/repo = %s/%s, want octo/hello", got.Owner, got.Repo)
	}
}

func TestParseSubjectRef_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "https://api.github.com/repos/octo/hello/pulls/", "https://api.github.com/repos/octo/hello/pulls/abc"} {
		n := testNotification(model.SubjectTypePullRequest, u)
		_, err := ParseSubjectRef(n)

		var lookupErr *model.LookupError
		if !errors.As(err, &lookupErr) {
			t.Errorf("url %q: err = %v, want *model.LookupError", u, err)
			continue
		}
		if lookupErr.Code != model.ErrCodeInvalidSubjectURL {
			t.Errorf("url %q: Code = %q, want %q", u, lookupErr.Code, model.ErrCodeInvalidSubjectURL)
		}
		want := model.SubjectRef{Owner: "octo", Repo: "hello", Kind: model.SubjectKindPullRequest}
		if lookupErr.Ref != want {
			t.Errorf("url %q: Ref = %+v, want %+v", u, lookupErr.Ref, want)
		}
	}
}

func TestParseSubjectRef_UnsupportedType(t *testing.T) {
	n := testNotification("Release", "https://api.github.com/repos/octo/hello/releases/1")
	if _, err := ParseSubjectRef(n); err == nil {
		t.Fatal("未対応の種別はエラーを返すべき")
	}
}
