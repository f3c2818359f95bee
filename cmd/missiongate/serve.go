package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/szaher/missiongate/internal/auth"
	"github.com/szaher/missiongate/internal/browser"
	"github.com/szaher/missiongate/internal/config"
	"github.com/szaher/missiongate/internal/llm"
	"github.com/szaher/missiongate/internal/loop"
	"github.com/szaher/missiongate/internal/runtime"
	"github.com/szaher/missiongate/internal/telemetry"
	"github.com/szaher/missiongate/internal/tools"
)

const shutdownGrace = 10 * time.Second

const systemPromptBase = `You are a fast web research assistant.

Rules:
- Use fetch_page(url) first to retrieve a page before working with it.
- Use parse_html(html, selector) for most extraction. Pick a precise CSS selector.
- Use extract_table_data(html) for tabular data.
- Use extract_metadata(html) for titles, descriptions, and canonical URLs.
- Use extract_article(url) to pull readable article text from a page.
- Give a concise final answer. Do not repeat raw page content verbatim.`

const systemPromptBrowser = `
- Only use browser tools (navigate_browser, etc.) when fetch_page returns empty content (JS-rendered SPA).
- If a browser tool reports a context error, just navigate again.`

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		Long:  "Load configuration from the environment, build the agent and its tools, and serve missions until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	} else {
		// Best effort: a .env in the working directory is optional.
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := telemetry.NewLogger(os.Stdout, level)
	metrics := telemetry.NewMetrics()

	keys, err := auth.NewKeyStore(cfg.APIKeys())
	if err != nil {
		return err
	}
	limiter := auth.NewSlidingWindowLimiter(cfg.RateLimitRPM, cfg.RateLimitWindow())

	guard := tools.NewGuard()
	registry := tools.NewRegistry()
	registry.Register(tools.FetchPageDefinition(), tools.NewFetchPageExecutor(guard))
	registry.Register(tools.ParseHTMLDefinition(), tools.ParseHTMLExecutor{})
	registry.Register(tools.ExtractTableDefinition(), tools.ExtractTableExecutor{})
	registry.Register(tools.ExtractMetadataDefinition(), tools.ExtractMetadataExecutor{})
	registry.Register(tools.ExtractArticleDefinition(), tools.NewExtractArticleExecutor(guard))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	systemPrompt := systemPromptBase
	browserAlive := func() bool { return false }
	if cfg.BrowserEnabled {
		mgr := browser.NewManager(browser.Options{
			Headless:      cfg.BrowserHeadless,
			NavTimeout:    cfg.NavTimeout(),
			ActionTimeout: cfg.ActionTimeout(),
		})
		if err := mgr.Start(ctx); err != nil {
			// The HTTP tools still work without a browser.
			logger.Warn("browser unavailable, continuing without browser tools", "error", err)
		} else {
			defer func() {
				if err := mgr.Stop(); err != nil {
					logger.Warn("browser shutdown", "error", err)
				}
			}()
			tools.RegisterBrowserTools(registry, mgr, guard)
			systemPrompt += systemPromptBrowser
			browserAlive = mgr.Alive
		}
	}

	client, model := llm.NewClientForModel(cfg.GroqModel, cfg.GroqAPIKey, cfg.AnthropicAPIKey)
	client = llm.NewBreakerClient(client, llm.DefaultBreakerConfig("llm"))

	temperature := cfg.GroqTemperature
	engine := loop.NewEngine(client, registry, loop.Config{
		Model:       model,
		System:      systemPrompt,
		MaxSteps:    cfg.AgentMaxSteps,
		MaxTokens:   cfg.GroqMaxTokens,
		Temperature: &temperature,
	})

	controller := runtime.NewStreamController(engine, cfg.AgentTimeout(), logger, metrics)
	srv := runtime.NewServer(runtime.ServerConfig{
		Controller:   controller,
		Keys:         keys,
		Limiter:      limiter,
		BrowserAlive: browserAlive,
		CORSOrigins:  cfg.CORSOriginList(),
		Logger:       logger,
		Metrics:      metrics,
	})

	logger.Info("starting gateway",
		"addr", cfg.ListenAddr,
		"model", model,
		"max_steps", cfg.AgentMaxSteps,
		"timeout_seconds", int(cfg.AgentTimeout().Seconds()),
		"tools", registry.Names(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
