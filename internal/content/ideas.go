package content

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"postpilot/internal/core"
)

// TextGenerator is the text capability content generation depends on.
// *ai.Gateway satisfies it.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt, platformHint, contextText string) (string, error)
}

// IdeaGenerator turns a profile and category into topics.
type IdeaGenerator struct {
	text   TextGenerator
	logger *slog.Logger
}

func NewIdeaGenerator(text TextGenerator, logger *slog.Logger) *IdeaGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdeaGenerator{text: text, logger: logger.With("component", "ideas")}
}

// GenerateIdeas always returns exactly count ideas. AI output is parsed as a
// numbered list, then as paragraphs; templates fill whatever is missing.
func (g *IdeaGenerator) GenerateIdeas(ctx context.Context, profile *core.BusinessProfile, category core.Category, count int) []core.ContentIdea {
	if count <= 0 {
		return nil
	}

	var topics []string
	if g.text != nil {
		raw, err := g.text.GenerateText(ctx, ideaPrompt(profile, category, count), "", profile.ContextText())
		if err != nil {
			g.logger.Warn("idea generation failed, using templates", "category", category, "err", err)
		} else {
			topics = parseNumbered(raw)
			if len(topics) == 0 {
				topics = parseParagraphs(raw)
			}
		}
	}

	seen := make(map[string]struct{}, count)
	ideas := make([]core.ContentIdea, 0, count)
	add := func(topic string) {
		topic = cleanTopic(topic)
		if topic == "" || len(ideas) >= count {
			return
		}
		key := strings.ToLower(topic)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		ideas = append(ideas, core.ContentIdea{Topic: topic, Category: category})
	}
	for _, t := range topics {
		add(t)
	}

	fallback := guideFor(category).Fallback
	for i := 0; len(ideas) < count && i < len(fallback)*4; i++ {
		add(interpolate(fallback[i%len(fallback)], profile, i))
	}
	for n := 2; len(ideas) < count; n++ {
		base := interpolate(fallback[len(ideas)%len(fallback)], profile, 0)
		add(fmt.Sprintf("%s (part %d)", base, n))
	}
	return ideas
}

func ideaPrompt(profile *core.BusinessProfile, category core.Category, count int) string {
	guide := guideFor(category)
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d unique %s social media post ideas for %s, a %s business.\n",
		count, strings.ReplaceAll(string(category), "_", " "), profile.BusinessName, profile.Industry)
	fmt.Fprintf(&b, "The goal of these posts is to %s.\n", guide.Purpose)
	if len(profile.Products) > 0 {
		fmt.Fprintf(&b, "Products and services: %s.\n", strings.Join(profile.Products, ", "))
	}
	if profile.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s.\n", profile.TargetAudience)
	}
	b.WriteString("Example phrasing:\n")
	for _, ex := range guide.Examples {
		b.WriteString("- " + ex + "\n")
	}
	fmt.Fprintf(&b, "Return exactly %d ideas as a numbered list, one short topic per line, with no extra commentary.", count)
	return b.String()
}

var numberedLine = regexp.MustCompile(`^\s*(?:\d+\s*[.):\-]|[-*•])\s+(.+)$`)

func parseNumbered(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, m[1])
	}
	return out
}

const minTopicLen = 10

// parseParagraphs handles prose answers: blank-line separated blocks, or
// plain lines when there is only one block.
func parseParagraphs(raw string) []string {
	blocks := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n\n")
	if len(blocks) <= 1 {
		blocks = strings.Split(raw, "\n")
	}
	var out []string
	for _, block := range blocks {
		block = strings.Join(strings.Fields(block), " ")
		if len(block) < minTopicLen {
			continue
		}
		if strings.HasSuffix(block, ":") {
			continue
		}
		out = append(out, block)
	}
	return out
}

const maxTopicLen = 200

func cleanTopic(topic string) string {
	topic = strings.TrimSpace(topic)
	topic = strings.Trim(topic, `"'*_`+"`")
	topic = strings.TrimSpace(strings.ReplaceAll(topic, "**", ""))
	if r := []rune(topic); len(r) > maxTopicLen {
		topic = strings.TrimSpace(string(r[:maxTopicLen]))
	}
	return topic
}
