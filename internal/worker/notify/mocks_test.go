package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/ghnotify/internal/github"
	"github.com/hitoshi/ghnotify/internal/model"
	"github.com/hitoshi/ghnotify/internal/slack"
)

// --- モック定義 ---

// mockStore はCursorStoreのテスト用モック。
// loadFuncが未設定の場合は state を返し、saveFuncが未設定の場合は state を上書きする。
type mockStore struct {
	mu       sync.Mutex
	state    model.CursorState
	saves    []model.CursorState
	loadFunc func(ctx context.Context) (model.CursorState, error)
	saveFunc func(ctx context.Context, state model.CursorState) error
}

func newMockStore(state model.CursorState) *mockStore {
	return &mockStore{state: state}
}

func (m *mockStore) Load(ctx context.Context) (model.CursorState, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *mockStore) Save(ctx context.Context, state model.CursorState) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.saves = append(m.saves, state)
	return nil
}

func (m *mockStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

// mockLister はNotificationListerのテスト用モック。
type mockLister struct {
	mu       sync.Mutex
	queries  []github.NotificationQuery
	listFunc func(ctx context.Context, q github.NotificationQuery) (*github.NotificationPage, error)
}

func (m *mockLister) ListNotifications(ctx context.Context, q github.NotificationQuery) (*github.NotificationPage, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.listFunc != nil {
		return m.listFunc(ctx, q)
	}
	return &github.NotificationPage{Notifications: []model.Notification{}}, nil
}

// mockFetcher はNotificationFetcherのテスト用モック。
type mockFetcher struct {
	mu        sync.Mutex
	calls     [][2]time.Time
	fetchFunc func(ctx context.Context, since, before time.Time) FetchResult
}

func (m *mockFetcher) Fetch(ctx context.Context, since, before time.Time) FetchResult {
	m.mu.Lock()
	m.calls = append(m.calls, [2]time.Time{since, before})
	m.mu.Unlock()
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, since, before)
	}
	return FetchResult{Notifications: []model.Notification{}, PollInterval: DefaultPollInterval}
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockResolver はSubjectResolverのテスト用モック。
type mockResolver struct {
	mu          sync.Mutex
	refs        []model.SubjectRef
	resolveFunc func(ctx context.Context, ref model.SubjectRef) (*model.SubjectDetail, error)
}

func (m *mockResolver) Resolve(ctx context.Context, ref model.SubjectRef) (*model.SubjectDetail, error) {
	m.mu.Lock()
	m.refs = append(m.refs, ref)
	m.mu.Unlock()
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, ref)
	}
	return nil, model.ErrSubjectNotFound
}

// mockSender はMessageSenderのテスト用モック。
type mockSender struct {
	mu       sync.Mutex
	sent     []slack.Message
	sentAt   []time.Time
	sendFunc func(ctx context.Context, msg slack.Message) error
}

func (m *mockSender) Send(ctx context.Context, msg slack.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.sentAt = append(m.sentAt, time.Now())
	m.mu.Unlock()
	if m.sendFunc != nil {
		return m.sendFunc(ctx, msg)
	}
	return nil
}

func (m *mockSender) messages() []slack.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]slack.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// mockRecorder はRecorderのテスト用モック。呼び出しを記録する。
type mockRecorder struct {
	mu             sync.Mutex
	cycles         []string
	fetches        []string
	lookupFailures int
	deliveries     []bool
	cursors        []time.Time
}

func (m *mockRecorder) RecordCycle(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, result)
}

func (m *mockRecorder) RecordFetch(result string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, result)
}

func (m *mockRecorder) RecordLookupFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupFailures++
}

func (m *mockRecorder) RecordDelivery(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, ok)
}

func (m *mockRecorder) RecordCursor(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors = append(m.cursors, t)
}

// stubGate は固定の判定を返すGate。
type stubGate struct {
	decision GateDecision
	policy   GatePolicy
}

func (g stubGate) Check(time.Time, model.CursorState) GateDecision { return g.decision }
func (g stubGate) Policy() GatePolicy                             { return g.policy }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// --- テストデータ ---

func newPRNotification(id string, number int, updatedAt time.Time) model.Notification {
	return model.Notification{
		ID:        id,
		Reason:    "review_requested",
		Unread:    true,
		UpdatedAt: updatedAt,
		Subject: model.Subject{
			Title: "PR " + id,
			URL:   "https://api.github.com/repos/octo/hello/pulls/" + strconv.Itoa(number),
			Type:  model.SubjectTypePullRequest,
		},
		Repository: model.Repository{
			Name:     "hello",
			FullName: "octo/hello",
			HTMLURL:  "https://github.com/octo/hello",
			Owner:    model.Owner{Login: "octo"},
		},
	}
}

func newIssueNotification(id string, number int, updatedAt time.Time) model.Notification {
	n := newPRNotification(id, number, updatedAt)
	n.Reason = "mention"
	n.Subject.Title = "Issue " + id
	n.Subject.URL = "https://api.github.com/repos/octo/hello/issues/" + strconv.Itoa(number)
	n.Subject.Type = model.SubjectTypeIssue
	return n
}
