package core

import (
	"strings"
	"time"
)

// Platform identifies a social network a post is written for.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTelegram  Platform = "telegram"
)

// ParsePlatform normalizes user input ("X", " LinkedIn ") to a Platform.
func ParsePlatform(value string) Platform {
	p := strings.ToLower(strings.TrimSpace(value))
	if p == "x" {
		return PlatformTwitter
	}
	return Platform(p)
}

// Category is one of the fixed content buckets used to diversify a calendar.
type Category string

const (
	CategoryEducational  Category = "educational"
	CategoryPromotional  Category = "promotional"
	CategoryEngagement   Category = "engagement"
	CategoryTestimonial  Category = "testimonial"
	CategoryBehindScenes Category = "behind_scenes"
)

// Categories lists every category in planning order.
var Categories = []Category{
	CategoryEducational,
	CategoryPromotional,
	CategoryEngagement,
	CategoryTestimonial,
	CategoryBehindScenes,
}

// Emoji returns the marker shown next to posts of this category.
func (c Category) Emoji() string {
	switch c {
	case CategoryEducational:
		return "📚"
	case CategoryPromotional:
		return "🎯"
	case CategoryEngagement:
		return "💬"
	case CategoryTestimonial:
		return "⭐"
	case CategoryBehindScenes:
		return "🎬"
	default:
		return "📝"
	}
}

// BrandVoice describes how the business wants to sound.
type BrandVoice struct {
	Tone  string
	Style string
}

// BusinessProfile is owned by the profile subsystem and read-only here.
type BusinessProfile struct {
	UserID             string
	BusinessName       string
	Industry           string
	Description        string
	Products           []string
	TargetAudience     string
	BrandVoice         BrandVoice
	Website            string
	Phone              string
	Email              string
	PreferredPlatforms []Platform
	UpdatedAt          time.Time
}

// ContextText renders the profile as the business context passed to providers.
func (p *BusinessProfile) ContextText() string {
	var b strings.Builder
	b.WriteString("Business: " + p.BusinessName + "\n")
	b.WriteString("Industry: " + p.Industry + "\n")
	if p.Description != "" {
		b.WriteString("Description: " + p.Description + "\n")
	}
	if len(p.Products) > 0 {
		b.WriteString("Products/services: " + strings.Join(p.Products, ", ") + "\n")
	}
	if p.TargetAudience != "" {
		b.WriteString("Target audience: " + p.TargetAudience + "\n")
	}
	if p.BrandVoice.Tone != "" || p.BrandVoice.Style != "" {
		b.WriteString("Brand voice: " + strings.TrimSpace(p.BrandVoice.Tone+" "+p.BrandVoice.Style) + "\n")
	}
	if p.Website != "" {
		b.WriteString("Website: " + p.Website + "\n")
	}
	return b.String()
}

// ContentIdea is a single topic produced for a category.
type ContentIdea struct {
	Topic    string
	Category Category
}

// ComposedPost is a fully written post that has not been scheduled yet.
type ComposedPost struct {
	Body         string
	CallToAction string
	Hashtags     []string
	ImageURL     string
	Category     Category
	Platform     Platform
	Emoji        string
	// Content is the final text blob: body, call to action and hashtags.
	Content string
}

// PostStatus describes where a scheduled post is in its lifecycle.
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPending   PostStatus = "pending"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
)

// ScheduledPost is the persisted unit the publisher works on.
type ScheduledPost struct {
	ID           string
	UserID       string
	RunID        *string
	Content      string
	ImageURL     *string
	Platform     Platform
	Category     Category
	ScheduledFor time.Time
	Status       PostStatus
	Attempts     int
	LastError    *string
	PublishedAt  *time.Time
	RemoteID     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MediaURLs returns the attached media as a slice for posting collaborators.
func (p *ScheduledPost) MediaURLs() []string {
	if p.ImageURL == nil || *p.ImageURL == "" {
		return nil
	}
	return []string{*p.ImageURL}
}

// AccountRef identifies the social account a post goes out on.
type AccountRef struct {
	UserID   string
	Platform Platform
}

// MediaAsset is a user-supplied image or video consumed before AI ideas.
type MediaAsset struct {
	ID          string
	URL         string
	Filename    string
	Description string
}

// MediaDescription is what a vision model says about a media asset.
type MediaDescription struct {
	Description        string
	Themes             []string
	SuggestedPlatforms []Platform
}

// PlanStatus describes whether an autopilot plan refreshes on its cron.
type PlanStatus string

const (
	PlanStatusActive PlanStatus = "active"
	PlanStatusPaused PlanStatus = "paused"
)

// RunStatus describes the state of an individual calendar generation.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusSkipped   RunStatus = "skipped"
)

// AutopilotPlan is a user's stored autopilot configuration.
type AutopilotPlan struct {
	ID            string
	UserID        string
	Name          *string
	Weeks         int
	PostsPerWeek  int
	PostsPerDay   int
	Platforms     []Platform
	IncludeImages bool
	Cron          string
	Status        PlanStatus
	LastRunAt     *time.Time
	NextRunAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AutopilotRun captures a single calendar generation attempt for a plan.
type AutopilotRun struct {
	ID             string
	PlanID         string
	UserID         string
	Status         RunStatus
	Progress       int
	Stage          string
	IdeasRequested int
	PostsComposed  int
	PostsScheduled int
	ScheduledAt    time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
	Error          *string
	CreatedAt      time.Time
	// Media is supplied with a manual run and consumed before AI ideas.
	// It is not persisted.
	Media []MediaAsset
}

// RunCounts are the three totals a generation reports. They can differ
// because a failed composition is skipped rather than aborting the run.
type RunCounts struct {
	IdeasRequested int `json:"ideas_requested"`
	PostsComposed  int `json:"posts_composed"`
	PostsScheduled int `json:"posts_scheduled"`
}

// Finished reports whether the run reached a terminal state.
func (r *AutopilotRun) Finished() bool {
	switch r.Status {
	case RunStatusQueued, RunStatusRunning:
		return false
	default:
		return true
	}
}
