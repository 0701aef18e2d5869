package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"postpilot/internal/autopilot"
	"postpilot/internal/core"
	"postpilot/internal/publisher"
	"postpilot/internal/store"
)

// PublishTicker runs one publisher pass on demand.
type PublishTicker interface {
	Tick(ctx context.Context) (publisher.TickReport, error)
}

// Options wires an MCPServer.
type Options struct {
	Store        *store.Store
	Scheduler    *autopilot.Scheduler
	Orchestrator *autopilot.Orchestrator
	// Publisher is optional; the tick tool reports an error without it.
	Publisher PublishTicker
	Logger    *slog.Logger
	Location  *time.Location
	Version   string
}

// MCPServer exposes plan management to MCP clients over stdio or HTTP.
type MCPServer struct {
	store        *store.Store
	scheduler    *autopilot.Scheduler
	orchestrator *autopilot.Orchestrator
	publisher    PublishTicker
	logger       *slog.Logger
	location     *time.Location

	mcp *server.MCPServer
}

// NewMCPServer creates a new MCP server instance with every tool registered.
func NewMCPServer(opts Options) *MCPServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	location := opts.Location
	if location == nil {
		location = time.Local
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	s := &MCPServer{
		store:        opts.Store,
		scheduler:    opts.Scheduler,
		orchestrator: opts.Orchestrator,
		publisher:    opts.Publisher,
		logger:       logger.With("component", "mcp"),
		location:     location,
		mcp:          server.NewMCPServer("postpilot", version, server.WithToolCapabilities(true)),
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving the stdio transport.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.mcp)
}

// Handler serves the streamable HTTP transport; the API mounts it at /mcp.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *MCPServer) registerTools() {
	s.mcp.AddTool(mcp.NewTool("autopilot_create_plan",
		mcp.WithDescription("Create an autopilot plan that regenerates a user's content calendar on a 5-field cron schedule"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the plan")),
		mcp.WithString("name", mcp.Description("Optional plan name")),
		mcp.WithNumber("weeks", mcp.Description("Weeks to fill per run, 1-12 (default 1)"), mcp.Min(1), mcp.Max(autopilot.MaxPlanWeeks)),
		mcp.WithNumber("posts_per_week", mcp.Description("Override the industry cadence"), mcp.Min(0)),
		mcp.WithNumber("posts_per_day", mcp.Description("Fixed daily cadence; wins over posts_per_week"), mcp.Min(0)),
		mcp.WithString("platforms", mcp.Description("Comma-separated platforms, e.g. 'linkedin,x'")),
		mcp.WithBoolean("include_images", mcp.Description("Generate an image for each post")),
		mcp.WithString("cron", mcp.Description("Refresh schedule (default '0 6 * * 1', Mondays 06:00)")),
	), s.handleCreatePlan)

	s.mcp.AddTool(mcp.NewTool("autopilot_list_plans",
		mcp.WithDescription("List autopilot plans"),
		mcp.WithString("user_id", mcp.Description("Only plans of this user")),
		mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("active", "paused")),
	), s.handleListPlans)

	s.mcp.AddTool(mcp.NewTool("autopilot_get_plan",
		mcp.WithDescription("Show a plan"),
		mcp.WithString("plan_id", mcp.Required(), mcp.Description("Plan ID")),
	), s.handleGetPlan)

	s.mcp.AddTool(mcp.NewTool("autopilot_update_plan",
		mcp.WithDescription("Update a plan. Omitted fields keep their value"),
		mcp.WithString("plan_id", mcp.Required(), mcp.Description("Plan ID")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithNumber("weeks", mcp.Description("Weeks to fill per run"), mcp.Min(1), mcp.Max(autopilot.MaxPlanWeeks)),
		mcp.WithNumber("posts_per_week", mcp.Description("Cadence override, 0 for the industry default"), mcp.Min(0)),
		mcp.WithNumber("posts_per_day", mcp.Description("Daily cadence, 0 to disable"), mcp.Min(0)),
		mcp.WithString("platforms", mcp.Description("Comma-separated platforms")),
		mcp.WithBoolean("include_images", mcp.Description("Generate images")),
		mcp.WithString("cron", mcp.Description("New cron expression")),
		mcp.WithBoolean("paused", mcp.Description("Pause or resume the plan")),
	), s.handleUpdatePlan)

	s.mcp.AddTool(mcp.NewTool("autopilot_delete_plan",
		mcp.WithDescription("Delete a plan and cancel its active run"),
		mcp.WithString("plan_id", mcp.Required(), mcp.Description("Plan ID")),
	), s.handleDeletePlan)

	s.mcp.AddTool(mcp.NewTool("autopilot_run_plan",
		mcp.WithDescription("Generate the plan's calendar now"),
		mcp.WithString("plan_id", mcp.Required(), mcp.Description("Plan ID")),
		mcp.WithString("media_urls", mcp.Description("Comma-separated image URLs to post about before AI ideas")),
	), s.handleRunPlan)

	s.mcp.AddTool(mcp.NewTool("autopilot_list_runs",
		mcp.WithDescription("Show the generation history of a plan"),
		mcp.WithString("plan_id", mcp.Required(), mcp.Description("Plan ID")),
		mcp.WithNumber("limit", mcp.Description("Number of runs, default 20"), mcp.Min(1), mcp.Max(100)),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("autopilot_get_run",
		mcp.WithDescription("Show progress and counts of a run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
	), s.handleGetRun)

	s.mcp.AddTool(mcp.NewTool("autopilot_cancel_run",
		mcp.WithDescription("Cancel an in-flight run. Posts composed so far are kept"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
	), s.handleCancelRun)

	s.mcp.AddTool(mcp.NewTool("cron_preview",
		mcp.WithDescription("Preview the next fire times of a cron expression"),
		mcp.WithString("cron", mcp.Required(), mcp.Description("Cron expression")),
		mcp.WithNumber("count", mcp.Description("Number of times, default 5"), mcp.Min(1), mcp.Max(10)),
	), s.handleCronPreview)

	s.mcp.AddTool(mcp.NewTool("schedule_preview",
		mcp.WithDescription("Show the category mix and slots a generation would use, without calling any AI provider"),
		mcp.WithString("industry", mcp.Description("Industry; taken from the user's profile when omitted")),
		mcp.WithString("user_id", mcp.Description("User whose profile supplies the industry and platforms")),
		mcp.WithNumber("weeks", mcp.Description("Weeks to plan, default 1"), mcp.Min(1), mcp.Max(autopilot.MaxPlanWeeks)),
		mcp.WithNumber("posts_per_week", mcp.Description("Cadence override"), mcp.Min(0)),
		mcp.WithNumber("posts_per_day", mcp.Description("Daily cadence"), mcp.Min(0)),
		mcp.WithString("platforms", mcp.Description("Comma-separated platforms")),
	), s.handleSchedulePreview)

	s.mcp.AddTool(mcp.NewTool("posts_list",
		mcp.WithDescription("List a user's scheduled and published posts"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User ID")),
		mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("scheduled", "pending", "published", "failed")),
		mcp.WithNumber("limit", mcp.Description("Maximum posts, default 20"), mcp.Min(1), mcp.Max(500)),
	), s.handleListPosts)

	s.mcp.AddTool(mcp.NewTool("publisher_tick",
		mcp.WithDescription("Publish every due post now"),
	), s.handlePublisherTick)

	s.logger.Info("MCP tools registered", "count", 13)
}

func (s *MCPServer) handleCreatePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spec := autopilot.PlanSpec{
		Name:          optionalString(request, "name"),
		Weeks:         int(mcp.ParseFloat64(request, "weeks", 1)),
		PostsPerWeek:  int(mcp.ParseFloat64(request, "posts_per_week", 0)),
		PostsPerDay:   int(mcp.ParseFloat64(request, "posts_per_day", 0)),
		Platforms:     splitList(mcp.ParseString(request, "platforms", "")),
		IncludeImages: mcp.ParseBoolean(request, "include_images", false),
		Cron:          mcp.ParseString(request, "cron", ""),
	}
	plan, err := autopilot.NewPlan(mcp.ParseString(request, "user_id", ""), spec, time.Now(), s.location)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.InsertPlan(ctx, plan); err != nil {
		s.logger.Error("insert plan", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to create plan: %v", err)), nil
	}
	if err := s.scheduler.AddOrUpdatePlan(ctx, plan); err != nil {
		s.logger.Error("schedule plan", "plan_id", plan.ID, "err", err)
	}
	s.logger.Info("plan created", "plan_id", plan.ID, "user_id", plan.UserID, "cron", plan.Cron)

	return mcp.NewToolResultText(fmt.Sprintf("Plan created\nID: %s\nNext run: %s", plan.ID, s.formatTime(plan.NextRunAt))), nil
}

func (s *MCPServer) handleListPlans(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var statusFilter *core.PlanStatus
	switch mcp.ParseString(request, "status", "") {
	case "active":
		status := core.PlanStatusActive
		statusFilter = &status
	case "paused":
		status := core.PlanStatusPaused
		statusFilter = &status
	}

	plans, err := s.store.ListPlans(ctx, mcp.ParseString(request, "user_id", ""), statusFilter)
	if err != nil {
		s.logger.Error("list plans", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list plans: %v", err)), nil
	}
	if len(plans) == 0 {
		return mcp.NewToolResultText("No plans found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d plans:\n\n", len(plans))
	for _, p := range plans {
		icon := "▶️"
		if p.Status == core.PlanStatusPaused {
			icon = "⏸️"
		}
		fmt.Fprintf(&b, "%s %s\n", icon, p.ID)
		if p.Name != nil {
			fmt.Fprintf(&b, "  Name: %s\n", *p.Name)
		}
		fmt.Fprintf(&b, "  User: %s\n", p.UserID)
		fmt.Fprintf(&b, "  Cron: %s\n", p.Cron)
		fmt.Fprintf(&b, "  Weeks: %d\n", p.Weeks)
		if p.NextRunAt != nil {
			fmt.Fprintf(&b, "  Next run: %s\n", s.formatTime(p.NextRunAt))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan, errResult := s.loadPlan(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Plan ID: %s\n", plan.ID)
	if plan.Name != nil {
		fmt.Fprintf(&b, "Name: %s\n", *plan.Name)
	}
	fmt.Fprintf(&b, "User: %s\n", plan.UserID)
	fmt.Fprintf(&b, "Status: %s\n", plan.Status)
	if s.scheduler.IsRunning(plan.ID) {
		b.WriteString("Running: yes\n")
	}
	fmt.Fprintf(&b, "Cron: %s\n", plan.Cron)
	fmt.Fprintf(&b, "Weeks: %d\n", plan.Weeks)
	switch {
	case plan.PostsPerDay > 0:
		fmt.Fprintf(&b, "Cadence: %d per day\n", plan.PostsPerDay)
	case plan.PostsPerWeek > 0:
		fmt.Fprintf(&b, "Cadence: %d per week\n", plan.PostsPerWeek)
	default:
		b.WriteString("Cadence: industry default\n")
	}
	if len(plan.Platforms) > 0 {
		fmt.Fprintf(&b, "Platforms: %s\n", joinPlatforms(plan.Platforms))
	}
	fmt.Fprintf(&b, "Images: %t\n", plan.IncludeImages)
	if plan.LastRunAt != nil {
		fmt.Fprintf(&b, "Last run: %s\n", s.formatTime(plan.LastRunAt))
	}
	if plan.NextRunAt != nil {
		fmt.Fprintf(&b, "Next run: %s\n", s.formatTime(plan.NextRunAt))
	}
	fmt.Fprintf(&b, "Created: %s\n", s.formatTime(&plan.CreatedAt))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleUpdatePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan, errResult := s.loadPlan(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	patch := autopilot.PlanPatch{
		Name:          optionalString(request, "name"),
		Weeks:         optionalInt(request, "weeks"),
		PostsPerWeek:  optionalInt(request, "posts_per_week"),
		PostsPerDay:   optionalInt(request, "posts_per_day"),
		IncludeImages: optionalBool(request, "include_images"),
		Cron:          optionalString(request, "cron"),
		Paused:        optionalBool(request, "paused"),
	}
	if raw := optionalString(request, "platforms"); raw != nil {
		platforms := splitList(*raw)
		patch.Platforms = &platforms
	}
	if err := autopilot.ApplyPlanPatch(plan, patch, time.Now(), s.location); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.UpdatePlan(ctx, plan); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update plan: %v", err)), nil
	}
	if err := s.scheduler.AddOrUpdatePlan(ctx, plan); err != nil {
		s.logger.Error("reschedule plan", "plan_id", plan.ID, "err", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Plan updated: %s\nStatus: %s", plan.ID, plan.Status)), nil
}

func (s *MCPServer) handleDeletePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	planID := mcp.ParseString(request, "plan_id", "")
	if err := s.store.DeletePlan(ctx, planID); err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("plan not found: %s", planID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete plan: %v", err)), nil
	}
	s.scheduler.RemovePlan(planID)
	return mcp.NewToolResultText(fmt.Sprintf("Plan deleted: %s", planID)), nil
}

func (s *MCPServer) handleRunPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan, errResult := s.loadPlan(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	var media []core.MediaAsset
	for _, url := range splitList(mcp.ParseString(request, "media_urls", "")) {
		media = append(media, core.MediaAsset{ID: core.NewID(), URL: url})
	}
	run, err := s.scheduler.RunNow(ctx, plan, media...)
	if err != nil {
		if errors.Is(err, autopilot.ErrPlanRunning) {
			return mcp.NewToolResultError("plan is already running"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to start plan: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Generation started\nPlan ID: %s\nRun ID: %s", plan.ID, run.ID)), nil
}

func (s *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	planID := mcp.ParseString(request, "plan_id", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	runs, err := s.store.ListRuns(ctx, planID, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("This plan has no runs yet"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d runs:\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(&b, "[%s] Run ID: %s\n", statusToIcon(r.Status), r.ID)
		fmt.Fprintf(&b, "    Status: %s\n", r.Status)
		if r.StartedAt != nil {
			fmt.Fprintf(&b, "    Started: %s\n", s.formatTime(r.StartedAt))
		}
		if r.EndedAt != nil {
			fmt.Fprintf(&b, "    Ended: %s\n", s.formatTime(r.EndedAt))
		}
		if r.Finished() {
			fmt.Fprintf(&b, "    Scheduled: %d of %d\n", r.PostsScheduled, r.IdeasRequested)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := mcp.ParseString(request, "run_id", "")
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", runID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to load run: %v", err)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Run ID: %s\n", run.ID)
	fmt.Fprintf(&b, "Plan ID: %s\n", run.PlanID)
	fmt.Fprintf(&b, "Status: %s %s\n", statusToIcon(run.Status), run.Status)
	fmt.Fprintf(&b, "Progress: %d%%", run.Progress)
	if run.Stage != "" {
		fmt.Fprintf(&b, " (%s)", run.Stage)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Ideas requested: %d\n", run.IdeasRequested)
	fmt.Fprintf(&b, "Posts composed: %d\n", run.PostsComposed)
	fmt.Fprintf(&b, "Posts scheduled: %d\n", run.PostsScheduled)
	if run.Error != nil {
		fmt.Fprintf(&b, "Error: %s\n", *run.Error)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleCancelRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := mcp.ParseString(request, "run_id", "")
	if err := s.scheduler.CancelRun(runID); err != nil {
		if errors.Is(err, autopilot.ErrRunNotActive) {
			return mcp.NewToolResultError(fmt.Sprintf("run is not active: %s", runID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to cancel run: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cancel requested: %s", runID)), nil
}

func (s *MCPServer) handleCronPreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cronExpr := mcp.ParseString(request, "cron", "")
	schedule, err := core.ParseCron(cronExpr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
	}
	count := int(mcp.ParseFloat64(request, "count", 5))
	nextTimes := core.NextOccurrences(schedule, time.Now().In(s.location), count)

	var b strings.Builder
	fmt.Fprintf(&b, "Cron expression: %s\n", cronExpr)
	fmt.Fprintf(&b, "Time zone: %s\n\n", s.location)
	b.WriteString("Next fire times:\n")
	for i, t := range nextTimes {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, t.Format("2006-01-02 15:04:05"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleSchedulePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profile := &core.BusinessProfile{Industry: strings.TrimSpace(mcp.ParseString(request, "industry", ""))}
	if userID := mcp.ParseString(request, "user_id", ""); profile.Industry == "" && userID != "" {
		stored, err := s.store.GetProfile(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrProfileNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("profile not found: %s", userID)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to load profile: %v", err)), nil
		}
		profile = stored
	}
	opts := autopilot.Options{
		Weeks:        int(mcp.ParseFloat64(request, "weeks", 1)),
		PostsPerWeek: int(mcp.ParseFloat64(request, "posts_per_week", 0)),
		PostsPerDay:  int(mcp.ParseFloat64(request, "posts_per_day", 0)),
	}
	for _, p := range splitList(mcp.ParseString(request, "platforms", "")) {
		opts.Platforms = append(opts.Platforms, core.ParsePlatform(p))
	}
	preview, err := s.orchestrator.Preview(profile, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Posts: %d (%d per week)\n", preview.Total, preview.PerWeek)
	if preview.B2B {
		b.WriteString("Audience: B2B, weekdays only\n")
	}
	b.WriteString("Mix:\n")
	for _, c := range core.Categories {
		fmt.Fprintf(&b, "  %s %s: %d\n", c.Emoji(), c, preview.Mix[c])
	}
	b.WriteString("\nSlots:\n")
	for _, slot := range preview.Slots {
		fmt.Fprintf(&b, "  %s  %-9s  %s\n", slot.At.In(s.location).Format("Mon 2006-01-02 15:04"), slot.Platform, slot.Category)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleListPosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := mcp.ParseString(request, "user_id", "")
	filter := store.PostFilter{Limit: int(mcp.ParseFloat64(request, "limit", 20))}
	if raw := mcp.ParseString(request, "status", ""); raw != "" {
		status := core.PostStatus(raw)
		filter.Status = &status
	}
	posts, err := s.store.ListPostsByUser(ctx, userID, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list posts: %v", err)), nil
	}
	if len(posts) == 0 {
		return mcp.NewToolResultText("No posts found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d posts:\n\n", len(posts))
	for _, p := range posts {
		fmt.Fprintf(&b, "%s %s  %s  [%s]\n", p.Category.Emoji(), s.formatTime(&p.ScheduledFor), p.Platform, p.Status)
		fmt.Fprintf(&b, "  %s\n\n", truncateString(strings.ReplaceAll(p.Content, "\n", " "), 80))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handlePublisherTick(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.publisher == nil {
		return mcp.NewToolResultError("publisher is disabled"), nil
	}
	report, err := s.publisher.Tick(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("publisher tick failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Due: %d\nPublished: %d\nFailed: %d\nAbandoned: %d",
		report.Due, report.Published, report.Failed, report.Abandoned)), nil
}

func (s *MCPServer) loadPlan(ctx context.Context, request mcp.CallToolRequest) (*core.AutopilotPlan, *mcp.CallToolResult) {
	planID := mcp.ParseString(request, "plan_id", "")
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, mcp.NewToolResultError(fmt.Sprintf("plan not found: %s", planID))
		}
		return nil, mcp.NewToolResultError(fmt.Sprintf("failed to load plan: %v", err))
	}
	return plan, nil
}

func (s *MCPServer) formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(s.location).Format("2006-01-02 15:04:05")
}

// Helper functions

func optionalString(request mcp.CallToolRequest, key string) *string {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil
	}
	v := mcp.ParseString(request, key, "")
	return &v
}

func optionalInt(request mcp.CallToolRequest, key string) *int {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil
	}
	v := int(mcp.ParseFloat64(request, key, 0))
	return &v
}

func optionalBool(request mcp.CallToolRequest, key string) *bool {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil
	}
	v := mcp.ParseBoolean(request, key, false)
	return &v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinPlatforms(platforms []core.Platform) string {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func statusToIcon(status core.RunStatus) string {
	switch status {
	case core.RunStatusSucceeded:
		return "✅"
	case core.RunStatusFailed:
		return "❌"
	case core.RunStatusCanceled:
		return "🚫"
	case core.RunStatusSkipped:
		return "⏭️"
	case core.RunStatusRunning:
		return "▶️"
	case core.RunStatusQueued:
		return "⏳"
	default:
		return "❓"
	}
}
