package content

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"unicode/utf8"

	"postpilot/internal/core"
)

// ErrNoContent is returned when neither the AI nor the idea yields any text.
var ErrNoContent = errors.New("no usable content")

// ImageGenerator returns the URL of an image for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, style string) (string, error)
}

// ComposerOptions are the optional collaborators of a Composer.
type ComposerOptions struct {
	Images   ImageGenerator
	Hashtags HashtagGenerator
	Logger   *slog.Logger
}

// Composer expands ideas into finished posts.
type Composer struct {
	text     TextGenerator
	images   ImageGenerator
	hashtags HashtagGenerator
	logger   *slog.Logger
}

func NewComposer(text TextGenerator, opts ComposerOptions) *Composer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hashtags := opts.Hashtags
	if hashtags == nil {
		hashtags = NewHashtagger(nil, logger)
	}
	return &Composer{
		text:     text,
		images:   opts.Images,
		hashtags: hashtags,
		logger:   logger.With("component", "composer"),
	}
}

// WithoutImages returns a copy of c that never requests images.
func (c *Composer) WithoutImages() *Composer {
	cp := *c
	cp.images = nil
	return &cp
}

// ComposePost writes body, hashtags, optional image and call to action for
// one idea. AI failures degrade to the idea topic as body unless ctx is done,
// in which case ctx.Err() is returned and nothing is composed.
func (c *Composer) ComposePost(ctx context.Context, idea core.ContentIdea, profile *core.BusinessProfile, platform core.Platform) (core.ComposedPost, error) {
	topic := strings.TrimSpace(idea.Topic)
	body := ""
	if c.text != nil {
		raw, err := c.text.GenerateText(ctx, bodyPrompt(idea, profile, platform), string(platform), profile.ContextText())
		if err != nil {
			if ctx.Err() != nil {
				return core.ComposedPost{}, ctx.Err()
			}
			c.logger.Warn("body generation failed, using idea text", "platform", platform, "category", idea.Category, "err", err)
		} else {
			body = cleanBody(raw)
		}
	}
	if body == "" {
		body = topic
	}
	if body == "" {
		return core.ComposedPost{}, ErrNoContent
	}

	post := core.ComposedPost{
		Body:         body,
		Category:     idea.Category,
		Platform:     platform,
		Emoji:        idea.Category.Emoji(),
		CallToAction: pickCTA(idea.Category, profile, topic),
		Hashtags:     c.hashtags.Generate(ctx, body, profile.Industry, platform, profile.ContextText()),
	}
	if c.images != nil && topic != "" {
		url, err := c.images.GenerateImage(ctx, imagePrompt(topic, profile), "clean, bright, professional social media photo")
		if err != nil {
			c.logger.Warn("image generation failed", "platform", platform, "err", err)
		} else {
			post.ImageURL = url
		}
	}
	if err := ctx.Err(); err != nil {
		return core.ComposedPost{}, err
	}
	post.Content = assemble(post)
	return post, nil
}

// ComposeFromMedia captions a user-supplied asset instead of an AI idea.
func (c *Composer) ComposeFromMedia(ctx context.Context, asset core.MediaAsset, desc core.MediaDescription, category core.Category, profile *core.BusinessProfile, platform core.Platform) (core.ComposedPost, error) {
	about := firstNonEmpty(desc.Description, asset.Description, asset.Filename)
	caption := ""
	if c.text != nil && about != "" {
		raw, err := c.text.GenerateText(ctx, captionPrompt(about, desc.Themes, category, profile, platform), string(platform), profile.ContextText())
		if err != nil {
			if ctx.Err() != nil {
				return core.ComposedPost{}, ctx.Err()
			}
			c.logger.Warn("caption generation failed, using description", "asset_id", asset.ID, "err", err)
		} else {
			caption = cleanBody(raw)
		}
	}
	if caption == "" {
		caption = about
	}
	if caption == "" {
		return core.ComposedPost{}, ErrNoContent
	}
	post := core.ComposedPost{
		Body:         caption,
		ImageURL:     asset.URL,
		Category:     category,
		Platform:     platform,
		Emoji:        category.Emoji(),
		CallToAction: pickCTA(category, profile, about),
		Hashtags:     c.hashtags.Generate(ctx, caption+" "+strings.Join(desc.Themes, " "), profile.Industry, platform, profile.ContextText()),
	}
	if err := ctx.Err(); err != nil {
		return core.ComposedPost{}, err
	}
	post.Content = assemble(post)
	return post, nil
}

func bodyPrompt(idea core.ContentIdea, profile *core.BusinessProfile, platform core.Platform) string {
	guide := guideFor(idea.Category)
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s post for %s about: %s\n", platform, profile.BusinessName, idea.Topic)
	fmt.Fprintf(&b, "Keep it under %d characters including emojis.\n", charBudget(platform))
	b.WriteString(guide.Style + "\n")
	if v := strings.TrimSpace(profile.BrandVoice.Tone + " " + profile.BrandVoice.Style); v != "" {
		fmt.Fprintf(&b, "Brand voice: %s.\n", v)
	}
	b.WriteString("Do not include hashtags or a call to action; they are added separately.")
	return b.String()
}

func captionPrompt(about string, themes []string, category core.Category, profile *core.BusinessProfile, platform core.Platform) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s caption for %s for a photo showing: %s\n", platform, profile.BusinessName, about)
	if len(themes) > 0 {
		fmt.Fprintf(&b, "Themes: %s\n", strings.Join(themes, ", "))
	}
	fmt.Fprintf(&b, "Keep it under %d characters.\n", charBudget(platform))
	b.WriteString(guideFor(category).Style + "\n")
	b.WriteString("Do not include hashtags.")
	return b.String()
}

func imagePrompt(topic string, profile *core.BusinessProfile) string {
	return fmt.Sprintf("Social media image for a %s business: %s. No text in the image.", profile.Industry, topic)
}

// cleanBody strips wrapping quotes and any hashtag lines the model added anyway.
func cleanBody(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && strings.HasPrefix(trimmed, "#") && len(extractHashtags(trimmed)) == len(strings.Fields(trimmed)) {
			continue
		}
		kept = append(kept, line)
	}
	body := strings.TrimSpace(strings.Join(kept, "\n"))
	return strings.TrimSpace(strings.Trim(body, `"`))
}

// pickCTA chooses a category call to action whose contact field is present.
// The choice is stable for a given seed.
func pickCTA(category core.Category, profile *core.BusinessProfile, seed string) string {
	templates := ctaTemplates[category]
	if len(templates) == 0 {
		return genericCTA
	}
	h := fnv.New32a()
	h.Write([]byte(seed))
	start := int(h.Sum32() % uint32(len(templates)))
	for i := 0; i < len(templates); i++ {
		t := templates[(start+i)%len(templates)]
		if !hasField(profile, t.needs) {
			continue
		}
		return interpolate(t.text, profile, 0)
	}
	return genericCTA
}

func hasField(profile *core.BusinessProfile, field string) bool {
	switch field {
	case "":
		return true
	case "website":
		return strings.TrimSpace(profile.Website) != ""
	case "phone":
		return strings.TrimSpace(profile.Phone) != ""
	case "email":
		return strings.TrimSpace(profile.Email) != ""
	default:
		return false
	}
}

const twitterLimit = 280

// assemble renders the final text: body and call to action, a blank line,
// then hashtags inline on twitter or one per line elsewhere.
func assemble(p core.ComposedPost) string {
	if p.Platform == core.PlatformTwitter {
		return fitTwitter(p.Body, p.CallToAction, p.Hashtags)
	}
	text := p.Body
	if p.CallToAction != "" {
		text += "\n\n" + p.CallToAction
	}
	if len(p.Hashtags) > 0 {
		text += "\n\n" + strings.Join(p.Hashtags, "\n")
	}
	return text
}

// fitTwitter drops hashtags, then the call to action, then truncates the
// body until the post fits the character limit.
func fitTwitter(body, cta string, tags []string) string {
	render := func(body, cta string, tags []string) string {
		text := body
		if cta != "" {
			text += " " + cta
		}
		if len(tags) > 0 {
			text += "\n\n" + strings.Join(tags, " ")
		}
		return text
	}
	text := render(body, cta, tags)
	for utf8.RuneCountInString(text) > twitterLimit && len(tags) > 0 {
		tags = tags[:len(tags)-1]
		text = render(body, cta, tags)
	}
	if utf8.RuneCountInString(text) > twitterLimit && cta != "" {
		cta = ""
		text = render(body, cta, tags)
	}
	if utf8.RuneCountInString(text) > twitterLimit {
		r := []rune(body)
		text = strings.TrimSpace(string(r[:twitterLimit-1])) + "…"
	}
	return text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
