package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postpilot/internal/core"
)

func TestParseEnvAndFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTPILOT_STATE_DIR", t.TempDir())
	t.Setenv("POSTPILOT_ADDR", "127.0.0.1:9000")
	t.Setenv("POSTPILOT_MAX_ATTEMPTS", "4")
	t.Setenv("POSTPILOT_TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("POSTPILOT_PUBLISH_INTERVAL", "30s")

	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-addr", ":8080", "-dry-run", "-mode", "both"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("flag should override env, got %q", cfg.Server.Addr)
	}
	if cfg.Server.Mode != "both" || !cfg.Publish.DryRun {
		t.Fatalf("unexpected flags applied: %+v", cfg.Server)
	}
	if cfg.Publish.MaxAttempts != 4 || cfg.Publish.TelegramChatID != -100123 {
		t.Fatalf("unexpected publish config %+v", cfg.Publish)
	}
	if cfg.Publish.Interval != 30*time.Second {
		t.Fatalf("unexpected interval %s", cfg.Publish.Interval)
	}
}

func TestParseMaxAttemptsZeroFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTPILOT_STATE_DIR", t.TempDir())
	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-max-attempts", "0"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Publish.MaxAttempts != 0 {
		t.Fatalf("explicit zero should disable the cap, got %d", cfg.Publish.MaxAttempts)
	}
}

func TestParseProviderOrder(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTPILOT_STATE_DIR", t.TempDir())

	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := strings.Join(cfg.AI.ProviderOrder, ","); got != "openai,anthropic,ollama" {
		t.Fatalf("unexpected default order %q", got)
	}

	t.Setenv("POSTPILOT_AI_PROVIDERS", "Ollama, openai")
	cfg, err = parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := strings.Join(cfg.AI.ProviderOrder, ","); got != "ollama,openai" {
		t.Fatalf("env order not applied, got %q", got)
	}

	cfg, err = parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-ai-providers", "anthropic"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := strings.Join(cfg.AI.ProviderOrder, ","); got != "anthropic" {
		t.Fatalf("flag should override env, got %q", got)
	}

	if _, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-ai-providers", "openai,mistral"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestParseRejectsUnknownMode(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTPILOT_STATE_DIR", t.TempDir())
	t.Setenv("POSTPILOT_MODE", "grpc")
	if _, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), nil); err == nil {
		t.Fatalf("expected invalid mode error")
	}
}

func TestLoadTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	data := `best_times:
  linkedin: ["07:30", "12:00"]
posts_per_week:
  Bakery: 6
default_posts_per_week: 5
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	tables, err := LoadTables(path)
	if err != nil {
		t.Fatalf("load tables: %v", err)
	}
	slots := tables.TimeTables.For(core.PlatformLinkedIn)
	if len(slots) != 2 || slots[0] != (core.TimeOfDay{Hour: 7, Minute: 30}) {
		t.Fatalf("unexpected linkedin slots %v", slots)
	}
	if tables.PostsPerWeekFor("Artisan Bakery") != 6 {
		t.Fatalf("expected bakery override, got %d", tables.PostsPerWeekFor("Artisan Bakery"))
	}
	if tables.PostsPerWeekFor("restaurant") != 7 {
		t.Fatalf("built-in entries should survive overrides")
	}
	if tables.PostsPerWeekFor("knitting") != 5 {
		t.Fatalf("expected default override")
	}
}

func TestLoadTablesRejectsBadTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	if err := os.WriteFile(path, []byte("best_times:\n  twitter: [\"25:00\"]\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadTables(path); err == nil {
		t.Fatalf("expected invalid time error")
	}
}

func TestLoadTablesEmptyPath(t *testing.T) {
	tables, err := LoadTables("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tables.DefaultPostsPerWeek != core.DefaultTables().DefaultPostsPerWeek {
		t.Fatalf("expected defaults")
	}
}
