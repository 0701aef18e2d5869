package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postpilot/internal/ai"
	"postpilot/internal/api"
	"postpilot/internal/autopilot"
	"postpilot/internal/config"
	"postpilot/internal/content"
	"postpilot/internal/core"
	"postpilot/internal/logging"
	postpilotmcp "postpilot/internal/mcp"
	"postpilot/internal/metrics"
	"postpilot/internal/notify"
	"postpilot/internal/publisher"
	"postpilot/internal/social"
	"postpilot/internal/store"
)

var version = "dev"

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.Log.Level)
	location := cfg.Location()

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir, cfg.Log.Retention)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.Close()

	if n, err := storeInst.FailInterruptedRuns(baseCtx, time.Now().UTC()); err != nil {
		logger.Warn("fail interrupted runs", "err", err)
	} else if n > 0 {
		logger.Info("marked interrupted runs as failed", "count", n)
	}

	tables, err := config.LoadTables(cfg.TablesFile)
	if err != nil {
		logger.Error("load scheduling tables", "path", cfg.TablesFile, "err", err)
		os.Exit(1)
	}

	m := metrics.New()
	notifier := buildNotifier(cfg, logger)

	textGateway, imageGateway, describer := buildProviders(cfg, m, logger)
	hashtags := content.NewHashtagger(textGateway, logger)
	composerOpts := content.ComposerOptions{Hashtags: hashtags, Logger: logger}
	if imageGateway != nil {
		composerOpts.Images = imageGateway
	}
	composer := content.NewComposer(textGateway, composerOpts)

	orchestratorCfg := autopilot.Config{
		Ideas:    content.NewIdeaGenerator(textGateway, logger),
		Composer: composer,
		TextOnly: composer.WithoutImages(),
		Store:    storeInst,
		Tables:   tables,
		Location: location,
		PaceMin:  cfg.AI.PaceMin,
		PaceMax:  cfg.AI.PaceMax,
		Metrics:  m,
		Logger:   logger,
	}
	if describer != nil {
		orchestratorCfg.Describer = describer
	}
	orchestrator := autopilot.NewOrchestrator(orchestratorCfg)
	runner := autopilot.NewRunner(orchestrator, storeInst, storeInst, notifier, m, logger)
	scheduler := autopilot.NewScheduler(storeInst, runner, logger, location)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	scheduler.Start(ctx)
	if err := scheduler.Sync(ctx); err != nil {
		logger.Error("initial sync", "err", err)
	}

	var pub *publisher.Publisher
	if cfg.Publish.Enabled {
		poster, err := buildPoster(cfg, logger)
		if err != nil {
			logger.Error("configure posters", "err", err)
			os.Exit(1)
		}
		pub = publisher.New(storeInst, poster, publisher.Options{
			Interval:    cfg.Publish.Interval,
			BatchSize:   cfg.Publish.BatchSize,
			MaxAttempts: cfg.Publish.MaxAttempts,
			Notifier:    notifier,
			Metrics:     m,
			Logger:      logger,
		})
		pub.Start(ctx)
	}

	providers := map[string]api.ProviderHealth{"text": textGateway}
	if imageGateway != nil {
		providers["image"] = imageGateway
	}
	var ticker api.PublishTicker
	var mcpTicker postpilotmcp.PublishTicker
	if pub != nil {
		ticker, mcpTicker = pub, pub
	}

	mcpServer := postpilotmcp.NewMCPServer(postpilotmcp.Options{
		Store:        storeInst,
		Scheduler:    scheduler,
		Orchestrator: orchestrator,
		Publisher:    mcpTicker,
		Logger:       logger,
		Location:     location,
		Version:      version,
	})

	serverErr := make(chan error, 2)
	var server *api.Server
	if cfg.Server.Mode == "http" || cfg.Server.Mode == "both" {
		server = api.NewServer(api.Options{
			Addr:         cfg.Server.Addr,
			AuthToken:    cfg.Server.AuthToken,
			Store:        storeInst,
			Scheduler:    scheduler,
			Orchestrator: orchestrator,
			Publisher:    ticker,
			Providers:    providers,
			MCP:          mcpServer.Handler(),
			Metrics:      m,
			Logger:       logger,
			Location:     location,
		})
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}
	if cfg.Server.Mode == "mcp" || cfg.Server.Mode == "both" {
		// The stdio transport ends when the client closes stdin.
		go func() {
			serverErr <- mcpServer.ServeStdio()
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "err", err)
		} else {
			logger.Info("mcp client disconnected")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}
	if pub != nil {
		pub.Stop()
	}
	scheduler.Stop(shutdownCtx)
	cancel()
	logger.Info("shutdown complete")
}

// buildProviders ranks the configured text providers by cfg.AI.ProviderOrder.
// Images and media descriptions need an OpenAI key.
func buildProviders(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*ai.Gateway, *ai.ImageGateway, *ai.OpenAIProvider) {
	var (
		available []ai.TextProvider
		openai    *ai.OpenAIProvider
	)
	if cfg.AI.OpenAIKey != "" {
		openai = ai.NewOpenAIProvider(ai.OpenAIConfig{
			Name:       "openai",
			APIKey:     cfg.AI.OpenAIKey,
			BaseURL:    cfg.AI.OpenAIBaseURL,
			Model:      cfg.AI.OpenAIModel,
			ImageModel: cfg.AI.ImageModel,
		})
		available = append(available, openai)
	}
	if cfg.AI.AnthropicKey != "" {
		available = append(available, ai.NewAnthropicProvider(ai.AnthropicConfig{
			APIKey: cfg.AI.AnthropicKey,
			Model:  cfg.AI.AnthropicModel,
		}))
	}
	if cfg.AI.OllamaURL != "" {
		available = append(available, ai.NewOllamaProvider(cfg.AI.OllamaURL, cfg.AI.OllamaModel))
	}
	text := ai.RankProviders(cfg.AI.ProviderOrder, available...)
	if len(text) < len(available) {
		logger.Info("text providers left out of the configured order", "configured", len(available), "ranked", len(text))
	}
	if len(text) == 0 {
		logger.Warn("no AI provider configured; posts will use templates")
	}

	gateway := ai.NewGateway(text, ai.GatewayOptions{
		Health:   ai.NewHealthState(cfg.AI.ProviderCooloff),
		CacheTTL: cfg.AI.CacheTTL,
		Metrics:  m,
		Logger:   logger,
	})
	if openai == nil {
		return gateway, nil, nil
	}
	var images *ai.ImageGateway
	if cfg.AI.Images {
		images = ai.NewImageGateway([]ai.ImageProvider{openai}, ai.NewHealthState(cfg.AI.ProviderCooloff), m, logger)
	}
	return gateway, images, openai
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if !cfg.Notification.Bark.Enabled || cfg.Notification.Bark.URL == "" {
		return &notify.NoOpNotifier{}
	}
	bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
	if err != nil {
		logger.Warn("bark notifier disabled", "err", err)
		return &notify.NoOpNotifier{}
	}
	return notify.NewMultiNotifier(bark)
}

// buildPoster routes Telegram posts to the bot and everything else to the
// webhook. Without a webhook, or in dry-run mode, posts are only logged.
func buildPoster(cfg *config.Config, logger *slog.Logger) (social.Poster, error) {
	dryRun := social.NewDryRun(logger)
	if cfg.Publish.DryRun {
		return dryRun, nil
	}

	var fallback social.Poster = dryRun
	if cfg.Publish.WebhookURL != "" {
		webhook, err := social.NewWebhookPoster(social.WebhookConfig{
			URL:        cfg.Publish.WebhookURL,
			Token:      cfg.Publish.WebhookToken,
			MaxRetries: cfg.Publish.WebhookRetries,
		})
		if err != nil {
			return nil, err
		}
		fallback = webhook
	} else {
		logger.Warn("no publishing webhook configured; non-telegram posts are logged only")
	}

	router := social.NewRouter(fallback)
	if cfg.Publish.TelegramToken != "" && cfg.Publish.TelegramChatID != 0 {
		telegram, err := social.NewTelegramPoster(cfg.Publish.TelegramToken, cfg.Publish.TelegramChatID)
		if err != nil {
			return nil, err
		}
		router.Handle(core.PlatformTelegram, telegram)
	}
	return router, nil
}
