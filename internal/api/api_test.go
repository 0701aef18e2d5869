package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"postpilot/internal/ai"
	"postpilot/internal/autopilot"
	"postpilot/internal/core"
	"postpilot/internal/logging"
	"postpilot/internal/publisher"
	"postpilot/internal/store"
)

// blockingExecutor holds every run until its context is canceled.
type blockingExecutor struct {
	started chan string
}

func (e *blockingExecutor) Execute(ctx context.Context, _ *core.AutopilotPlan, run *core.AutopilotRun) error {
	e.started <- run.ID
	<-ctx.Done()
	return nil
}

type fakeHealth struct {
	resets int
}

func (f *fakeHealth) Health() ai.HealthSnapshot { return ai.HealthSnapshot{} }
func (f *fakeHealth) Reset()                    { f.resets++ }

type fakeTicker struct{}

func (fakeTicker) Tick(context.Context) (publisher.TickReport, error) {
	return publisher.TickReport{Due: 2, Published: 2}, nil
}

type testEnv struct {
	srv      *Server
	store    *store.Store
	executor *blockingExecutor
	health   *fakeHealth
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir(), 5)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := logging.Discard()
	exec := &blockingExecutor{started: make(chan string, 4)}
	sched := autopilot.NewScheduler(st, exec, logger, time.UTC)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(ctx)
	})

	health := &fakeHealth{}
	srv := NewServer(Options{
		AuthToken:    token,
		Store:        st,
		Scheduler:    sched,
		Orchestrator: autopilot.NewOrchestrator(autopilot.Config{Location: time.UTC, Logger: logger}),
		Publisher:    fakeTicker{},
		Providers:    map[string]ProviderHealth{"text": health},
		Logger:       logger,
		Location:     time.UTC,
	})
	return &testEnv{srv: srv, store: st, executor: exec, health: health}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "")
	if rec := env.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthToken(t *testing.T) {
	env := newTestEnv(t, "secret")
	rec := env.do(t, http.MethodGet, "/v1/plans", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/plans?token=secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", rec.Code)
	}
}

func TestPlanLifecycle(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/v1/plans", map[string]any{
		"user_id":   "u1",
		"weeks":     2,
		"platforms": []string{"x", "linkedin"},
		"cron":      "0 6 * * 1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[planResponse](t, rec)
	if created.Status != "active" || created.NextRunAt == nil || len(created.Platforms) != 2 {
		t.Fatalf("unexpected plan %+v", created)
	}

	rec = env.do(t, http.MethodPatch, "/v1/plans/"+created.ID, map[string]any{"paused": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if updated := decode[planResponse](t, rec); updated.Status != "paused" || updated.NextRunAt != nil {
		t.Fatalf("expected paused plan without next run, got %+v", updated)
	}

	rec = env.do(t, http.MethodGet, "/v1/plans?user_id=u1&status=paused", nil)
	if list := decode[[]planResponse](t, rec); len(list) != 1 {
		t.Fatalf("expected one paused plan, got %d", len(list))
	}

	if rec = env.do(t, http.MethodDelete, "/v1/plans/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec = env.do(t, http.MethodGet, "/v1/plans/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreatePlanRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, "")
	for _, body := range []map[string]any{
		{"user_id": "u1", "weeks": 13},
		{"user_id": "u1", "cron": "whenever"},
		{"weeks": 1},
	} {
		if rec := env.do(t, http.MethodPost, "/v1/plans", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", body, rec.Code)
		}
	}
}

func TestRunPlanConflictAndCancel(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/v1/plans", map[string]any{"user_id": "u1"})
	plan := decode[planResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/v1/plans/"+plan.ID+"/run", map[string]any{
		"media": []map[string]string{{"url": "https://example.com/a.jpg"}},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("run: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	runID := decode[map[string]string](t, rec)["run_id"]
	select {
	case <-env.executor.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("executor never started")
	}

	if rec = env.do(t, http.MethodPost, "/v1/plans/"+plan.ID+"/run", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second run: expected 409, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/runs/"+runID, nil)
	if got := decode[runResponse](t, rec); got.PlanID != plan.ID || got.Status != "queued" {
		t.Fatalf("unexpected run %+v", got)
	}

	if rec = env.do(t, http.MethodPost, "/v1/runs/"+runID+"/cancel", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("cancel: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec = env.do(t, http.MethodPost, "/v1/runs/missing/cancel", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("cancel missing: expected 404, got %d", rec.Code)
	}
}

func TestRunPlanRejectsMediaWithoutURL(t *testing.T) {
	env := newTestEnv(t, "")
	plan := decode[planResponse](t, env.do(t, http.MethodPost, "/v1/plans", map[string]any{"user_id": "u1"}))
	rec := env.do(t, http.MethodPost, "/v1/plans/"+plan.ID+"/run", map[string]any{
		"media": []map[string]string{{"filename": "a.jpg"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProfileAndSchedulePreview(t *testing.T) {
	env := newTestEnv(t, "")
	if rec := env.do(t, http.MethodGet, "/v1/users/u1/profile", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before profile exists, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/v1/users/u1/profile", map[string]any{"business_name": "Crumb"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without industry, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodPut, "/v1/users/u1/profile", map[string]any{
		"business_name":       "Crumb",
		"industry":            "Bakery",
		"preferred_platforms": []string{"instagram"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put profile: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/preview/schedule", map[string]any{
		"user_id": "u1",
		"weeks":   1,
		"start":   "2030-01-07",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	preview := decode[autopilot.Preview](t, rec)
	if preview.Total == 0 || len(preview.Slots) == 0 {
		t.Fatalf("expected a non-empty preview, got %+v", preview)
	}
	for _, slot := range preview.Slots {
		if slot.Platform != core.PlatformInstagram {
			t.Fatalf("expected profile platform, got %s", slot.Platform)
		}
	}

	if rec = env.do(t, http.MethodPost, "/v1/preview/schedule", map[string]any{"industry": "saas", "weeks": 0}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero weeks, got %d", rec.Code)
	}
}

func TestMixAndCronPreview(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/v1/preview/mix?total=10", nil)
	mix := decode[mixPreviewResponse](t, rec)
	if mix.Planned != 10 {
		t.Fatalf("expected 10 planned posts, got %+v", mix)
	}
	if rec = env.do(t, http.MethodGet, "/v1/preview/mix", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without total, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/preview/cron", map[string]any{"expr": "0 9 * * 1", "count": 3, "now": "2030-01-01T00:00:00Z"})
	cron := decode[cronPreviewResponse](t, rec)
	if !cron.Valid || len(cron.NextTimes) != 3 || cron.NextTimes[0] != "2030-01-07T09:00:00Z" {
		t.Fatalf("unexpected cron preview %+v", cron)
	}
}

func TestPostsListSummaryAndClear(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	base := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	var posts []*core.ScheduledPost
	for i := 0; i < 3; i++ {
		posts = append(posts, &core.ScheduledPost{
			ID:           core.NewID(),
			UserID:       "u1",
			Content:      "Post",
			Platform:     core.PlatformLinkedIn,
			Category:     core.CategoryEducational,
			ScheduledFor: base.AddDate(0, 0, i),
			Status:       core.PostStatusScheduled,
		})
	}
	if err := env.store.InsertScheduledPosts(ctx, posts); err != nil {
		t.Fatalf("insert posts: %v", err)
	}
	if err := env.store.MarkPostPublished(ctx, posts[0].ID, base, "remote-1"); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/v1/users/u1/posts?from=2030-01-08", nil)
	if list := decode[[]postResponse](t, rec); len(list) != 2 {
		t.Fatalf("expected two posts from the 8th, got %d", len(list))
	}
	if rec = env.do(t, http.MethodGet, "/v1/users/u1/posts?from=yesterday", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/posts/"+posts[0].ID, nil)
	if got := decode[postResponse](t, rec); got.Status != "published" || got.RemoteID == nil {
		t.Fatalf("unexpected post %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/v1/users/u1/posts/summary", nil)
	summary := decode[map[string]int](t, rec)
	if summary["published"] != 1 || summary["scheduled"] != 2 {
		t.Fatalf("unexpected summary %v", summary)
	}

	rec = env.do(t, http.MethodGet, "/v1/users/u1/calendar.xlsx", nil)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("export: expected xlsx body, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/users/u1/posts", nil)
	if deleted := decode[map[string]int64](t, rec)["deleted"]; deleted != 2 {
		t.Fatalf("expected two deleted posts, got %d", deleted)
	}
}

func TestProvidersAndPublisherTick(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/v1/providers", nil)
	if list := decode[[]providerStatus](t, rec); len(list) != 1 || list[0].Name != "text" {
		t.Fatalf("unexpected providers %+v", list)
	}
	if rec = env.do(t, http.MethodPost, "/v1/providers/reset", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("reset: expected 204, got %d", rec.Code)
	}
	if env.health.resets != 1 {
		t.Fatalf("expected one reset, got %d", env.health.resets)
	}

	rec = env.do(t, http.MethodPost, "/v1/publisher/tick", nil)
	if report := decode[publisher.TickReport](t, rec); report.Published != 2 {
		t.Fatalf("unexpected tick report %+v", report)
	}
}
