package content

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"postpilot/internal/core"
)

// HashtagGenerator produces the ordered hashtag list for a post.
type HashtagGenerator interface {
	Generate(ctx context.Context, body, industry string, platform core.Platform, businessContext string) []string
}

// Hashtagger mixes industry seeds, AI suggestions and body keywords.
type Hashtagger struct {
	text   TextGenerator
	logger *slog.Logger
}

// NewHashtagger returns a generator. text may be nil to skip AI suggestions.
func NewHashtagger(text TextGenerator, logger *slog.Logger) *Hashtagger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hashtagger{text: text, logger: logger.With("component", "hashtags")}
}

func (h *Hashtagger) Generate(ctx context.Context, body, industry string, platform core.Platform, businessContext string) []string {
	limit := hashtagCount(platform)
	seeds := seedHashtags(industry)
	keywords := keywordHashtags(body, limit)

	var suggested []string
	if h.text != nil {
		prompt := fmt.Sprintf("Suggest 10 relevant hashtags for this %s post in the %s industry. "+
			"Return only the hashtags separated by spaces, each starting with #.\n\nPost:\n%s", platform, industry, body)
		raw, err := h.text.GenerateText(ctx, prompt, string(platform), businessContext)
		if err != nil {
			h.logger.Debug("hashtag suggestion failed", "platform", platform, "err", err)
		} else {
			suggested = extractHashtags(raw)
		}
	}

	// Interleave so each source is represented even when the limit is small.
	out := make([]string, 0, limit)
	seen := make(map[string]struct{})
	sources := [][]string{seeds, suggested, keywords}
	for i := 0; len(out) < limit; i++ {
		progressed := false
		for _, src := range sources {
			if i >= len(src) {
				continue
			}
			progressed = true
			tag := normalizeHashtag(src[i])
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, tag)
			if len(out) == limit {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

var hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

func extractHashtags(raw string) []string {
	return hashtagPattern.FindAllString(raw, -1)
}

func normalizeHashtag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "#")
	var b strings.Builder
	for _, r := range tag {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "because": {}, "before": {}, "being": {},
	"could": {}, "every": {}, "first": {}, "from": {}, "have": {}, "their": {},
	"there": {}, "these": {}, "thing": {}, "things": {}, "think": {}, "those": {},
	"today": {}, "where": {}, "which": {}, "while": {}, "would": {}, "your": {},
	"yours": {}, "other": {}, "really": {}, "should": {}, "something": {},
}

// keywordHashtags picks the most frequent longer words in the body.
func keywordHashtags(body string, limit int) []string {
	counts := make(map[string]int)
	order := make(map[string]int)
	words := strings.FieldsFunc(strings.ToLower(body), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		if len([]rune(w)) < 5 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, ok := order[w]; !ok {
			order[w] = i
		}
		counts[w]++
	}
	keys := make([]string, 0, len(counts))
	for w := range counts {
		keys = append(keys, w)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return order[keys[i]] < order[keys[j]]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, len(keys))
	for i, w := range keys {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		out[i] = "#" + string(r)
	}
	return out
}
