package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"postpilot/internal/autopilot"
	"postpilot/internal/core"
	"postpilot/internal/logging"
	"postpilot/internal/store"
)

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, *core.AutopilotPlan, *core.AutopilotRun) error {
	return nil
}

func newTestServer(t *testing.T) (*MCPServer, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir(), 5)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := logging.Discard()
	sched := autopilot.NewScheduler(st, nopExecutor{}, logger, time.UTC)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(ctx)
	})
	srv := NewMCPServer(Options{
		Store:        st,
		Scheduler:    sched,
		Orchestrator: autopilot.NewOrchestrator(autopilot.Config{Location: time.UTC, Logger: logger}),
		Logger:       logger,
		Location:     time.UTC,
	})
	return srv, st
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	return text.Text
}

func TestCreateUpdateAndDeletePlan(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleCreatePlan(ctx, call(map[string]any{
		"user_id":   "u1",
		"weeks":     float64(2),
		"platforms": "linkedin, x",
	}))
	if err != nil || res.IsError {
		t.Fatalf("create failed: %v %s", err, resultText(t, res))
	}
	plans, err := st.ListPlans(ctx, "u1", nil)
	if err != nil || len(plans) != 1 {
		t.Fatalf("expected one stored plan, got %d (%v)", len(plans), err)
	}
	plan := plans[0]
	if plan.Weeks != 2 || len(plan.Platforms) != 2 || plan.Platforms[1] != core.PlatformTwitter {
		t.Fatalf("unexpected plan %+v", plan)
	}

	res, _ = srv.handleUpdatePlan(ctx, call(map[string]any{"plan_id": plan.ID, "paused": true}))
	if res.IsError {
		t.Fatalf("update failed: %s", resultText(t, res))
	}
	updated, err := st.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if updated.Status != core.PlanStatusPaused || updated.Weeks != 2 || len(updated.Platforms) != 2 {
		t.Fatalf("omitted fields should be kept: %+v", updated)
	}

	res, _ = srv.handleDeletePlan(ctx, call(map[string]any{"plan_id": plan.ID}))
	if res.IsError {
		t.Fatalf("delete failed: %s", resultText(t, res))
	}
	res, _ = srv.handleGetPlan(ctx, call(map[string]any{"plan_id": plan.ID}))
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Fatalf("expected not found, got %s", resultText(t, res))
	}
}

func TestCreatePlanRejectsBadCron(t *testing.T) {
	srv, _ := newTestServer(t)
	res, err := srv.handleCreatePlan(context.Background(), call(map[string]any{"user_id": "u1", "cron": "nope"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for bad cron")
	}
}

func TestSchedulePreviewTool(t *testing.T) {
	srv, _ := newTestServer(t)
	res, _ := srv.handleSchedulePreview(context.Background(), call(map[string]any{
		"industry":  "saas",
		"weeks":     float64(1),
		"platforms": "linkedin",
	}))
	if res.IsError {
		t.Fatalf("preview failed: %s", resultText(t, res))
	}
	text := resultText(t, res)
	if !strings.Contains(text, "B2B") || !strings.Contains(text, "linkedin") {
		t.Fatalf("unexpected preview:\n%s", text)
	}

	res, _ = srv.handleSchedulePreview(context.Background(), call(map[string]any{"weeks": float64(1)}))
	if !res.IsError {
		t.Fatalf("expected error without industry")
	}
}

func TestCronPreviewTool(t *testing.T) {
	srv, _ := newTestServer(t)
	res, _ := srv.handleCronPreview(context.Background(), call(map[string]any{"cron": "0 6 * * 1", "count": float64(3)}))
	if res.IsError {
		t.Fatalf("preview failed: %s", resultText(t, res))
	}
	if got := strings.Count(resultText(t, res), "06:00:00"); got != 3 {
		t.Fatalf("expected three fire times, got %d", got)
	}
}

func TestPublisherTickWithoutPublisher(t *testing.T) {
	srv, _ := newTestServer(t)
	res, _ := srv.handlePublisherTick(context.Background(), call(nil))
	if !res.IsError {
		t.Fatalf("expected error when publisher is disabled")
	}
}

func TestCancelUnknownRun(t *testing.T) {
	srv, _ := newTestServer(t)
	res, _ := srv.handleCancelRun(context.Background(), call(map[string]any{"run_id": "missing"}))
	if !res.IsError {
		t.Fatalf("expected error for inactive run")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" linkedin, ,x ,")
	if len(got) != 2 || got[0] != "linkedin" || got[1] != "x" {
		t.Fatalf("unexpected split %v", got)
	}
}
