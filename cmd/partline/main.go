// Command partline is the main entry point for the Partline voice parts
// matching server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/partline/partline/internal/catalog"
	"github.com/partline/partline/internal/config"
	"github.com/partline/partline/internal/crosssell"
	"github.com/partline/partline/internal/extract"
	"github.com/partline/partline/internal/health"
	"github.com/partline/partline/internal/match"
	"github.com/partline/partline/internal/observe"
	"github.com/partline/partline/internal/resilience"
	"github.com/partline/partline/internal/resolve"
	"github.com/partline/partline/internal/server"
	"github.com/partline/partline/internal/session"
	"github.com/partline/partline/pkg/provider/embeddings"
	oaembed "github.com/partline/partline/pkg/provider/embeddings/openai"
	"github.com/partline/partline/pkg/provider/llm"
	"github.com/partline/partline/pkg/provider/llm/anyllm"
	oallm "github.com/partline/partline/pkg/provider/llm/openai"
	oartc "github.com/partline/partline/pkg/provider/realtime/openai"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "partline: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "partline: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("partline starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	obsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "partline",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsShutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()

	// ── Catalog snapshot ──────────────────────────────────────────────────────
	index, err := loadCatalog(ctx, cfg.Catalog)
	if err != nil {
		slog.Error("failed to load catalog", "err", err)
		return 1
	}
	slog.Info("catalog loaded", "rows", index.Len(), "dimensions", index.Dimensions())

	// ── Providers ─────────────────────────────────────────────────────────────
	llmProvider, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", llmProvider.ModelID())

	chain := resilience.NewChain(cfg.Providers.LLM.Name, llmProvider, logger)
	for _, fb := range cfg.Providers.LLMFallbacks {
		p, err := buildLLM(fb)
		if err != nil {
			slog.Error("failed to create llm fallback", "name", fb.Name, "err", err)
			return 1
		}
		chain.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", "llm_fallback", "name", fb.Name, "model", p.ModelID())
	}

	embedder, err := buildEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider", "name", cfg.Providers.Embeddings.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "embeddings", "name", cfg.Providers.Embeddings.Name, "model", embedder.ModelID())

	rtProvider := buildRealtime(cfg.Providers.Realtime)
	slog.Info("provider created", "kind", "realtime", "name", "openai")

	// ── Matching pipeline ─────────────────────────────────────────────────────
	sampler := crosssell.New(index)
	arbiter := resolve.New(chain, logger)
	extractor := extract.New(chain, logger)

	var matchOpts []match.Option
	if cfg.Pipeline.TopK > 0 {
		matchOpts = append(matchOpts, match.WithTopK(cfg.Pipeline.TopK))
	}
	if cfg.Pipeline.CrossSellMin > 0 || cfg.Pipeline.CrossSellMax > 0 {
		matchOpts = append(matchOpts, match.WithCrossSellRange(cfg.Pipeline.CrossSellMin, cfg.Pipeline.CrossSellMax))
	}
	engine, err := match.New(index, embedder, arbiter, sampler, logger, matchOpts...)
	if err != nil {
		slog.Error("failed to build matching engine", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	checks := health.New(
		health.Check{Name: "catalog", Fn: func(context.Context) error {
			if index.Len() == 0 {
				return errors.New("catalog is empty")
			}
			return nil
		}},
		health.Check{Name: "llm", Fn: func(context.Context) error {
			if !chain.Healthy() {
				return errors.New("all llm backends tripped")
			}
			return nil
		}},
	)

	var sessionOpts []session.Option
	if cfg.Pipeline.IncludeUnmatched {
		sessionOpts = append(sessionOpts, session.WithIncludeUnmatched(true))
	}
	if cfg.Pipeline.MatchTimeout > 0 {
		sessionOpts = append(sessionOpts, session.WithMatchTimeout(cfg.Pipeline.MatchTimeout.Std()))
	}

	srv := server.New(rtProvider, extractor, engine, logger,
		server.WithSessionOptions(sessionOpts...),
		server.WithHealth(checks),
	)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg, addr, index.Len())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Catalog ───────────────────────────────────────────────────────────────────

func loadCatalog(ctx context.Context, cfg config.CatalogConfig) (*catalog.Index, error) {
	var (
		index *catalog.Index
		err   error
	)
	switch {
	case cfg.FromPostgres():
		index, err = catalog.LoadPostgres(ctx, cfg.PostgresDSN, cfg.Table)
	default:
		index, err = catalog.LoadFiles(cfg.RowsCSV, cfg.VectorsJSON)
	}
	if err != nil {
		return nil, err
	}
	if cfg.EmbeddingDimensions > 0 && index.Dimensions() != cfg.EmbeddingDimensions {
		return nil, fmt.Errorf("catalog vectors have %d dimensions, config expects %d",
			index.Dimensions(), cfg.EmbeddingDimensions)
	}
	return index, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildLLM creates the extraction/arbitration backend. "openai" uses the
// native SDK client; everything else goes through any-llm-go.
func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	if entry.Name == "openai" {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	}

	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	var opts []oaembed.Option
	if entry.BaseURL != "" {
		opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
	}
	return oaembed.New(entry.APIKey, entry.Model, opts...)
}

func buildRealtime(cfg config.RealtimeConfig) *oartc.Provider {
	var opts []oartc.Option
	if cfg.Model != "" {
		opts = append(opts, oartc.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, oartc.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TranscriptionModel != "" {
		opts = append(opts, oartc.WithTranscriptionModel(cfg.TranscriptionModel))
	}
	if cfg.VADThreshold != 0 || cfg.PrefixPaddingMs != 0 || cfg.SilenceDurationMs != 0 {
		threshold := cfg.VADThreshold
		if threshold == 0 {
			threshold = 0.5
		}
		prefix := cfg.PrefixPaddingMs
		if prefix == 0 {
			prefix = 300
		}
		silence := cfg.SilenceDurationMs
		if silence == 0 {
			silence = 500
		}
		opts = append(opts, oartc.WithTurnDetection(threshold, prefix, silence))
	}
	return oartc.New(cfg.APIKey, opts...)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, addr string, rows int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Partline — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("Realtime", "openai", cfg.Providers.Realtime.Model)
	source := "files"
	if cfg.Catalog.FromPostgres() {
		source = "postgres"
	}
	fmt.Printf("║  Catalog         : %-19s ║\n", fmt.Sprintf("%d rows (%s)", rows, source))
	fmt.Printf("║  Listen addr     : %-19s ║\n", addr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
