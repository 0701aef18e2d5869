package ai

import (
	"context"
	"strings"
)

// TextRequest is a single text-generation call.
type TextRequest struct {
	Prompt       string
	PlatformHint string
	Context      string
}

// TextProvider is one ranked text backend.
type TextProvider interface {
	Name() string
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// ImageProvider is one ranked image backend. It returns a URL to the image.
type ImageProvider interface {
	Name() string
	GenerateImage(ctx context.Context, prompt, style string) (string, error)
}

// systemPrompt frames every provider call the same way so responses are
// comparable across backends.
func systemPrompt(req TextRequest) string {
	var b strings.Builder
	b.WriteString("You are a social media marketing copywriter for small businesses.")
	if hint := strings.TrimSpace(req.PlatformHint); hint != "" {
		b.WriteString(" Write for ")
		b.WriteString(hint)
		b.WriteString(".")
	}
	b.WriteString(" Respond with the requested text only, without preamble.")
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		b.WriteString("\n\nBusiness context:\n")
		b.WriteString(ctx)
	}
	return b.String()
}

// RankProviders orders providers by the names in order. Providers whose name
// is missing from order are dropped, as are names with no provider.
func RankProviders(order []string, providers ...TextProvider) []TextProvider {
	byName := make(map[string]TextProvider, len(providers))
	for _, p := range providers {
		if p != nil {
			byName[p.Name()] = p
		}
	}
	ranked := make([]TextProvider, 0, len(providers))
	for _, name := range order {
		if p, ok := byName[name]; ok {
			ranked = append(ranked, p)
			delete(byName, name)
		}
	}
	return ranked
}
