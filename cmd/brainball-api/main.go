// Command brainball-api serves POST /v1/text-to-animal, the remote tier the
// devices call before falling back to their own matcher.
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

	"github.com/MrWong99/brainball/internal/api"
	"github.com/MrWong99/brainball/internal/app"
	"github.com/MrWong99/brainball/internal/config"
	"github.com/MrWong99/brainball/internal/health"
	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/brainball/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/brainball/pkg/provider/embeddings/openai"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	addr := flag.String("addr", "", "listen address, overrides api.listen_addr")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAPI(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "brainball-api: %v\n", err)
			return 1
		}
	}
	if *addr != "" {
		cfg.API.ListenAddr = *addr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Slog(),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "brainball-api",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Resolver: local matcher + static table ────────────────────────────────
	rc := cfg.Resolver
	var emb embeddings.Provider
	if rc.LocalMatcher == config.LocalMatcherEmbedding {
		emb, err = newEmbeddings(rc.Embeddings)
		if err != nil {
			slog.Error("failed to create embeddings provider", "name", rc.Embeddings.Name, "err", err)
			return 1
		}
	}
	store, closeStore, err := app.OpenReferenceStore(ctx, rc.ReferenceStoreDSN)
	if err != nil {
		slog.Error("failed to open reference store", "err", err)
		return 1
	}
	defer closeStore()

	matcher, err := app.NewLocalMatcher(ctx, rc, emb, store)
	if err != nil {
		slog.Error("failed to build local matcher", "err", err)
		return 1
	}
	opts := []resolve.Option{
		resolve.WithThreshold(rc.SimilarityThreshold),
		resolve.WithMetrics(metrics),
	}
	if matcher != nil {
		opts = append(opts, resolve.WithLocalMatcher(matcher))
	}
	resolver := resolve.New(opts...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	checks := health.New()
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks.Add(health.Ping("reference_store", p.Ping))
	}

	mux := http.NewServeMux()
	api.NewHandler(resolver, api.WithMaxTextLength(cfg.API.MaxTextLength)).Register(mux)
	checks.Register(mux)
	mux.Handle("GET /metrics", telemetry.Handler())

	srv := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening",
			"addr", srv.Addr,
			"local_matcher", rc.LocalMatcher,
			"max_text_length", cfg.API.MaxTextLength,
		)
		errCh <- srv.ListenAndServe()
	}()

	code := 0
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			code = 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// newEmbeddings builds the embeddings backend named by entry.
func newEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	case "ollama":
		return ollamaembed.New(entry.BaseURL, entry.Model)
	default:
		return nil, fmt.Errorf("%w: embeddings/%q", config.ErrProviderNotRegistered, entry.Name)
	}
}
