package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"postpilot/internal/core"
	"postpilot/internal/logging"
	"postpilot/internal/store"
)

var now = time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu    sync.Mutex
	posts []*core.ScheduledPost
}

func (m *memStore) QueryDuePosts(_ context.Context, at time.Time, limit int) ([]*core.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.ScheduledPost
	for _, p := range m.posts {
		if p.Status == core.PostStatusScheduled && !p.ScheduledFor.After(at) && len(out) < limit {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) find(id string) *core.ScheduledPost {
	for _, p := range m.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *memStore) MarkPostPublished(_ context.Context, id string, at time.Time, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.find(id)
	if p == nil || p.Status != core.PostStatusScheduled {
		return store.ErrPostNotScheduled
	}
	p.Status = core.PostStatusPublished
	p.PublishedAt = &at
	p.RemoteID = &remoteID
	return nil
}

func (m *memStore) RecordPublishFailure(_ context.Context, id, errMsg string, maxAttempts int) (int, core.PostStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.find(id)
	if p == nil || p.Status != core.PostStatusScheduled {
		return 0, "", store.ErrPostNotScheduled
	}
	p.Attempts++
	p.LastError = &errMsg
	if maxAttempts > 0 && p.Attempts >= maxAttempts {
		p.Status = core.PostStatusFailed
	}
	return p.Attempts, p.Status, nil
}

type fakePoster struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakePoster) Publish(_ context.Context, account core.AccountRef, content string, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, content)
	if f.err != nil {
		return "", f.err
	}
	return "remote-" + string(account.Platform), nil
}

type countingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (c *countingNotifier) Send(_ context.Context, title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	return nil
}

func post(id string, at time.Time) *core.ScheduledPost {
	return &core.ScheduledPost{
		ID:           id,
		UserID:       "u1",
		Content:      "content " + id,
		Platform:     core.PlatformLinkedIn,
		Category:     core.CategoryEducational,
		ScheduledFor: at,
		Status:       core.PostStatusScheduled,
	}
}

func newTestPublisher(st Store, poster Poster, opts Options) *Publisher {
	opts.Logger = logging.Discard()
	opts.Now = func() time.Time { return now }
	return New(st, poster, opts)
}

func TestTickPublishesOnlyDuePosts(t *testing.T) {
	st := &memStore{posts: []*core.ScheduledPost{
		post("past", now.Add(-time.Hour)),
		post("exact", now),
		post("future", now.Add(time.Minute)),
	}}
	poster := &fakePoster{}
	p := newTestPublisher(st, poster, Options{})

	report, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Due != 2 || report.Published != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if st.find("future").Status != core.PostStatusScheduled {
		t.Fatalf("future post must not be published")
	}
	if got := st.find("past"); got.RemoteID == nil || *got.RemoteID != "remote-linkedin" {
		t.Fatalf("remote id not recorded: %+v", got)
	}

	report, err = p.Tick(context.Background())
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if report.Due != 0 || len(poster.calls) != 2 {
		t.Fatalf("second tick should publish nothing, got %+v with %d calls", report, len(poster.calls))
	}
}

func TestTickRespectsBatchSize(t *testing.T) {
	st := &memStore{}
	for i := 0; i < 15; i++ {
		st.posts = append(st.posts, post(string(rune('a'+i)), now.Add(-time.Duration(i)*time.Minute)))
	}
	p := newTestPublisher(st, &fakePoster{}, Options{})
	report, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Due != DefaultBatchSize || report.Published != DefaultBatchSize {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestTickFailureKeepsPostScheduledUntilMaxAttempts(t *testing.T) {
	st := &memStore{posts: []*core.ScheduledPost{post("p1", now)}}
	poster := &fakePoster{err: errors.New("rate limited")}
	notifier := &countingNotifier{}
	p := newTestPublisher(st, poster, Options{MaxAttempts: 2, Notifier: notifier})

	report, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Failed != 1 || report.Abandoned != 0 {
		t.Fatalf("unexpected first report %+v", report)
	}
	got := st.find("p1")
	if got.Status != core.PostStatusScheduled || got.Attempts != 1 || got.LastError == nil {
		t.Fatalf("post should stay scheduled after one failure: %+v", got)
	}

	report, err = p.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if report.Abandoned != 1 {
		t.Fatalf("unexpected second report %+v", report)
	}
	if st.find("p1").Status != core.PostStatusFailed {
		t.Fatalf("post should be failed after max attempts")
	}
	if len(notifier.titles) != 1 {
		t.Fatalf("expected one notification, got %v", notifier.titles)
	}

	report, _ = p.Tick(context.Background())
	if report.Due != 0 {
		t.Fatalf("failed post must not be retried, got %+v", report)
	}
}

func TestTickRetriesForeverWithoutMaxAttempts(t *testing.T) {
	st := &memStore{posts: []*core.ScheduledPost{post("p1", now)}}
	p := newTestPublisher(st, &fakePoster{err: errors.New("down")}, Options{MaxAttempts: 0})
	for i := 0; i < 12; i++ {
		if _, err := p.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if got := st.find("p1"); got.Status != core.PostStatusScheduled || got.Attempts != 12 {
		t.Fatalf("unexpected post %+v", got)
	}
}

func TestStartTicksAndStop(t *testing.T) {
	st := &memStore{posts: []*core.ScheduledPost{post("p1", now)}}
	poster := &fakePoster{}
	p := newTestPublisher(st, poster, Options{Interval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		poster.mu.Lock()
		n := len(poster.calls)
		poster.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	p.Stop()
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.find("p1").Status != core.PostStatusPublished {
		t.Fatalf("expected timer to publish the due post")
	}
}
