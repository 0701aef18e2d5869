package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"postpilot/internal/core"
	"postpilot/internal/logging"
)

type textFunc func(prompt, platformHint string) (string, error)

func (f textFunc) GenerateText(_ context.Context, prompt, platformHint, _ string) (string, error) {
	return f(prompt, platformHint)
}

type imageFunc func(prompt string) (string, error)

func (f imageFunc) GenerateImage(_ context.Context, prompt, _ string) (string, error) {
	return f(prompt)
}

func bakery() *core.BusinessProfile {
	return &core.BusinessProfile{
		UserID:         "u1",
		BusinessName:   "Crumb & Co",
		Industry:       "Bakery",
		Products:       []string{"sourdough", "croissants"},
		TargetAudience: "busy commuters",
		Website:        "https://crumb.example",
	}
}

var errDown = errors.New("providers down")

func TestGenerateIdeasParsesNumberedList(t *testing.T) {
	gen := NewIdeaGenerator(textFunc(func(prompt, _ string) (string, error) {
		if !strings.Contains(prompt, "3 unique educational") {
			t.Errorf("unexpected prompt %q", prompt)
		}
		return "Here you go:\n1. How sourdough starters work\n2) Storing bread the right way\n3 - Why we proof overnight\n", nil
	}), logging.Discard())

	ideas := gen.GenerateIdeas(context.Background(), bakery(), core.CategoryEducational, 3)
	want := []string{"How sourdough starters work", "Storing bread the right way", "Why we proof overnight"}
	if len(ideas) != len(want) {
		t.Fatalf("expected %d ideas, got %d", len(want), len(ideas))
	}
	for i, idea := range ideas {
		if idea.Topic != want[i] {
			t.Errorf("idea %d: got %q, want %q", i, idea.Topic, want[i])
		}
		if idea.Category != core.CategoryEducational {
			t.Errorf("idea %d: unexpected category %s", i, idea.Category)
		}
	}
}

func TestGenerateIdeasParagraphFallback(t *testing.T) {
	gen := NewIdeaGenerator(textFunc(func(string, string) (string, error) {
		return "Show the morning bake from start to finish.\n\nIntroduce the newest member of the team.", nil
	}), logging.Discard())

	ideas := gen.GenerateIdeas(context.Background(), bakery(), core.CategoryBehindScenes, 2)
	if len(ideas) != 2 {
		t.Fatalf("expected 2 ideas, got %d", len(ideas))
	}
	if ideas[0].Topic != "Show the morning bake from start to finish." {
		t.Fatalf("unexpected first idea %q", ideas[0].Topic)
	}
}

func TestGenerateIdeasTopsUpFromTemplates(t *testing.T) {
	gen := NewIdeaGenerator(textFunc(func(string, string) (string, error) {
		return "1. Only one idea came back", nil
	}), logging.Discard())

	ideas := gen.GenerateIdeas(context.Background(), bakery(), core.CategoryPromotional, 5)
	if len(ideas) != 5 {
		t.Fatalf("expected 5 ideas, got %d", len(ideas))
	}
	if ideas[0].Topic != "Only one idea came back" {
		t.Fatalf("expected AI idea first, got %q", ideas[0].Topic)
	}
	for _, idea := range ideas[1:] {
		if strings.Contains(idea.Topic, "{") {
			t.Fatalf("template not interpolated: %q", idea.Topic)
		}
	}
}

func TestGenerateIdeasWhenGatewayFails(t *testing.T) {
	gen := NewIdeaGenerator(textFunc(func(string, string) (string, error) {
		return "", errDown
	}), logging.Discard())

	for _, count := range []int{0, 1, 7, 40} {
		ideas := gen.GenerateIdeas(context.Background(), bakery(), core.CategoryTestimonial, count)
		if len(ideas) != count {
			t.Fatalf("count %d: got %d ideas", count, len(ideas))
		}
		seen := map[string]bool{}
		for _, idea := range ideas {
			key := strings.ToLower(idea.Topic)
			if seen[key] {
				t.Fatalf("count %d: duplicate idea %q", count, idea.Topic)
			}
			seen[key] = true
		}
	}
}

func TestGenerateIdeasDeduplicates(t *testing.T) {
	gen := NewIdeaGenerator(textFunc(func(string, string) (string, error) {
		return "1. Fresh bread daily\n2. FRESH BREAD DAILY\n3. Meet our bakers", nil
	}), logging.Discard())
	ideas := gen.GenerateIdeas(context.Background(), bakery(), core.CategoryEngagement, 3)
	if ideas[1].Topic != "Meet our bakers" {
		t.Fatalf("expected case-insensitive dedupe, got %q", ideas[1].Topic)
	}
}

func TestComposePostLinkedIn(t *testing.T) {
	var sawBudget bool
	composer := NewComposer(textFunc(func(prompt, _ string) (string, error) {
		if strings.Contains(prompt, "under 1300 characters") {
			sawBudget = true
		}
		return "\"Our sourdough takes 36 hours from start to finish.\"\n#bread #yum", nil
	}), ComposerOptions{
		Images: imageFunc(func(string) (string, error) { return "https://img.example/a.png", nil }),
		Logger: logging.Discard(),
	})

	post, err := composer.ComposePost(context.Background(), core.ContentIdea{Topic: "Sourdough timeline", Category: core.CategoryEducational}, bakery(), core.PlatformLinkedIn)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !sawBudget {
		t.Fatalf("expected linkedin character budget in prompt")
	}
	if post.Body != "Our sourdough takes 36 hours from start to finish." {
		t.Fatalf("unexpected body %q", post.Body)
	}
	if post.ImageURL != "https://img.example/a.png" {
		t.Fatalf("expected image url, got %q", post.ImageURL)
	}
	if post.Emoji != "📚" || post.Category != core.CategoryEducational || post.Platform != core.PlatformLinkedIn {
		t.Fatalf("unexpected metadata %+v", post)
	}
	if len(post.Hashtags) != 3 {
		t.Fatalf("expected 3 linkedin hashtags, got %v", post.Hashtags)
	}
	if !strings.HasPrefix(post.Content, post.Body+"\n\n") {
		t.Fatalf("expected body first, got %q", post.Content)
	}
	if !strings.HasSuffix(post.Content, strings.Join(post.Hashtags, "\n")) {
		t.Fatalf("expected hashtag block at the end, got %q", post.Content)
	}
}

func TestComposePostDegradesToTopic(t *testing.T) {
	composer := NewComposer(textFunc(func(string, string) (string, error) {
		return "", errDown
	}), ComposerOptions{
		Images: imageFunc(func(string) (string, error) { return "", errDown }),
		Logger: logging.Discard(),
	})

	post, err := composer.ComposePost(context.Background(), core.ContentIdea{Topic: "Meet the team", Category: core.CategoryBehindScenes}, bakery(), core.PlatformInstagram)
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	if post.Body != "Meet the team" {
		t.Fatalf("expected topic as body, got %q", post.Body)
	}
	if post.ImageURL != "" {
		t.Fatalf("expected no image after failure")
	}

	if _, err := composer.ComposePost(context.Background(), core.ContentIdea{Category: core.CategoryBehindScenes}, bakery(), core.PlatformInstagram); !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestComposePostTwitterFits(t *testing.T) {
	long := strings.Repeat("Warm bread is the best way to start a cold morning. ", 10)
	composer := NewComposer(textFunc(func(string, string) (string, error) {
		return long, nil
	}), ComposerOptions{Logger: logging.Discard()})

	post, err := composer.ComposePost(context.Background(), core.ContentIdea{Topic: "Morning bread", Category: core.CategoryPromotional}, bakery(), core.PlatformTwitter)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if n := utf8.RuneCountInString(post.Content); n > twitterLimit {
		t.Fatalf("twitter post is %d characters", n)
	}
}

func TestComposePostWithoutImages(t *testing.T) {
	called := false
	composer := NewComposer(nil, ComposerOptions{
		Images: imageFunc(func(string) (string, error) { called = true; return "x", nil }),
		Logger: logging.Discard(),
	}).WithoutImages()
	if _, err := composer.ComposePost(context.Background(), core.ContentIdea{Topic: "Topic", Category: core.CategoryEngagement}, bakery(), core.PlatformFacebook); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if called {
		t.Fatalf("expected image generator not to be called")
	}
}

func TestComposeFromMedia(t *testing.T) {
	composer := NewComposer(textFunc(func(string, string) (string, error) {
		return "", errDown
	}), ComposerOptions{Logger: logging.Discard()})

	asset := core.MediaAsset{ID: "m1", URL: "https://cdn.example/latte.jpg", Filename: "latte.jpg"}
	desc := core.MediaDescription{Description: "A latte with heart art", Themes: []string{"coffee"}}
	post, err := composer.ComposeFromMedia(context.Background(), asset, desc, core.CategoryBehindScenes, bakery(), core.PlatformInstagram)
	if err != nil {
		t.Fatalf("compose from media: %v", err)
	}
	if post.Body != "A latte with heart art" || post.ImageURL != asset.URL {
		t.Fatalf("unexpected post %+v", post)
	}

	if _, err := composer.ComposeFromMedia(context.Background(), core.MediaAsset{ID: "m2"}, core.MediaDescription{}, core.CategoryBehindScenes, bakery(), core.PlatformInstagram); !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestComposeCanceledDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	composer := NewComposer(textFunc(func(string, string) (string, error) {
		cancel()
		return "", context.Canceled
	}), ComposerOptions{Logger: logging.Discard()})

	post, err := composer.ComposePost(ctx, core.ContentIdea{Topic: "Meet the team", Category: core.CategoryBehindScenes}, bakery(), core.PlatformLinkedIn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v (body %q)", err, post.Body)
	}

	asset := core.MediaAsset{ID: "m1", URL: "https://cdn.example/latte.jpg"}
	desc := core.MediaDescription{Description: "A latte with heart art"}
	if _, err := composer.ComposeFromMedia(ctx, asset, desc, core.CategoryBehindScenes, bakery(), core.PlatformInstagram); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from media, got %v", err)
	}
}

func TestPickCTA(t *testing.T) {
	profile := bakery()
	cta := pickCTA(core.CategoryPromotional, profile, "any")
	if strings.Contains(cta, "{") {
		t.Fatalf("uninterpolated cta %q", cta)
	}
	if strings.Contains(cta, "Call") {
		t.Fatalf("phone cta chosen without a phone number: %q", cta)
	}

	bare := &core.BusinessProfile{BusinessName: "Bare"}
	for _, c := range core.Categories {
		got := pickCTA(c, bare, "seed")
		if strings.Contains(got, "http") || strings.Contains(got, "{") {
			t.Fatalf("%s: expected generic phrasing, got %q", c, got)
		}
	}
}

func TestHashtaggerMergesSources(t *testing.T) {
	h := NewHashtagger(textFunc(func(string, string) (string, error) {
		return "#bakery #Artisan #fresh_bread", nil
	}), logging.Discard())

	tags := h.Generate(context.Background(), "Our artisan sourdough sourdough loaves", "Bakery", core.PlatformInstagram, "")
	if len(tags) == 0 || len(tags) > hashtagCount(core.PlatformInstagram) {
		t.Fatalf("unexpected tag count %d", len(tags))
	}
	seen := map[string]bool{}
	for _, tag := range tags {
		if !strings.HasPrefix(tag, "#") {
			t.Fatalf("tag without #: %q", tag)
		}
		key := strings.ToLower(tag)
		if seen[key] {
			t.Fatalf("duplicate tag %q in %v", tag, tags)
		}
		seen[key] = true
	}
	if !seen["#artisan"] || !seen["#sourdough"] {
		t.Fatalf("expected ai and keyword tags, got %v", tags)
	}

	twitter := h.Generate(context.Background(), "Our artisan sourdough", "Bakery", core.PlatformTwitter, "")
	if len(twitter) != 2 {
		t.Fatalf("expected 2 twitter tags, got %v", twitter)
	}
}

func TestCleanBodyDropsHashtagLines(t *testing.T) {
	got := cleanBody("Line one\n#tag #other\nLine #two")
	if got != "Line one\nLine #two" {
		t.Fatalf("unexpected body %q", got)
	}
}
