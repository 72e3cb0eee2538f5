// Command brainball is the device entry point: it listens to the microphone,
// resolves the recognised word to an animal and renders it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/brainball/internal/app"
	"github.com/MrWong99/brainball/internal/config"
	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/internal/resolve/llmremote"
	"github.com/MrWong99/brainball/internal/resolve/remote"
	"github.com/MrWong99/brainball/pkg/audio"
	"github.com/MrWong99/brainball/pkg/audio/portaudio"
	"github.com/MrWong99/brainball/pkg/provider/asr"
	"github.com/MrWong99/brainball/pkg/provider/asr/vosk"
	"github.com/MrWong99/brainball/pkg/provider/asr/whisper"
	"github.com/MrWong99/brainball/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/brainball/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/brainball/pkg/provider/embeddings/openai"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level is adjustable at runtime by config reloads.
	var level slog.LevelVar
	slog.SetDefault(newLogger(&level))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Load configuration ────────────────────────────────────────────────────
	// application is assigned below; the watcher only polls once Run starts.
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		application.ApplyConfig(old, new)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "brainball: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "brainball: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()
	level.Set(cfg.Server.LogLevel.Slog())

	slog.Info("brainball starting",
		"version", version,
		"config", *configPath,
		"mode", cfg.Mode,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "brainball",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	// InitProvider installed the global meter provider.
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err = app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.Handler()),
		app.WithLogLevel(&level),
		app.WithWatcher(watcher),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("device ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in backend factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(c config.AudioConfig) (audio.Source, error) {
		return portaudio.New(
			portaudio.WithSampleRate(c.SampleRate),
			portaudio.WithFramesPerBuffer(c.FramesPerBuffer),
		), nil
	})

	// ── Recognisers ───────────────────────────────────────────────────────────

	reg.RegisterRecognizer("vosk", func(c config.RecognizerConfig) (asr.Recognizer, error) {
		var opts []vosk.Option
		if optBool(c.Options, "verbose") {
			opts = append(opts, vosk.WithVerbose())
		}
		return vosk.New(c.Model, opts...)
	})

	reg.RegisterRecognizer("whisper-native", func(c config.RecognizerConfig) (asr.Recognizer, error) {
		var opts []whisper.Option
		if lang := optString(c.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := optInt(c.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms := optInt(c.Options, "max_buffer_ms"); ms > 0 {
			opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
		}
		return whisper.New(c.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})

	// ── Remote resolvers ──────────────────────────────────────────────────────

	reg.RegisterRemote("http", func(p config.RemoteParams) (resolve.RemoteResolver, error) {
		return remote.New(p.Entry.BaseURL, remote.WithTimeout(p.Timeout))
	})

	// The llm remote talks to an any-llm backend named by options.backend
	// (openai or ollama; default openai).
	reg.RegisterRemote("llm", func(p config.RemoteParams) (resolve.RemoteResolver, error) {
		backend := optString(p.Entry.Options, "backend")
		if backend == "" {
			backend = "openai"
		}
		var opts []anyllmlib.Option
		if p.Entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(p.Entry.APIKey))
		}
		if p.Entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(p.Entry.BaseURL))
		}
		return llmremote.New(backend, p.Entry.Model, p.AnimalKeys, opts...)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all backends named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. The recogniser is built lazily by the recognition loop.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	audioCfg := cfg.Audio
	if audioCfg.Name == "" {
		audioCfg.Name = "portaudio"
	}
	src, err := reg.CreateAudio(audioCfg)
	if err != nil {
		return nil, fmt.Errorf("create audio source %q: %w", audioCfg.Name, err)
	}
	ps.Audio = src
	slog.Info("provider created", "kind", "audio", "name", audioCfg.Name)

	if name := cfg.Recognizer.Name; name != "" {
		ps.Recognizer = reg.RecognizerFactory(cfg.Recognizer)
		slog.Info("provider registered for lazy start", "kind", "recognizer", "name", name, "model", cfg.Recognizer.Model)
	}

	rc := cfg.Resolver
	if name := rc.Remote.Name; name != "" {
		r, err := reg.CreateRemote(config.RemoteParams{
			Entry:      rc.Remote,
			Timeout:    rc.RemoteTimeout,
			AnimalKeys: resolve.AnimalKeys(resolve.DefaultAnimals),
		})
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("remote resolver not available, skipping", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create remote resolver %q: %w", name, err)
		} else {
			ps.Remote = r
			slog.Info("provider created", "kind", "remote", "name", name)
		}
	}

	if name := rc.Embeddings.Name; name != "" && rc.LocalMatcher == config.LocalMatcherEmbedding {
		p, err := reg.CreateEmbeddings(rc.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", rc.Embeddings.Model)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        brainball startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Mode            : %-19s ║\n", cfg.Mode)
	printProvider("Audio", cfg.Audio.Name, "")
	printProvider("Recognizer", cfg.Recognizer.Name, cfg.Recognizer.Model)
	printProvider("Remote", cfg.Resolver.Remote.Name, cfg.Resolver.Remote.Model)
	printProvider("Matcher", string(cfg.Resolver.LocalMatcher), "")
	printProvider("Embeddings", cfg.Resolver.Embeddings.Name, cfg.Resolver.Embeddings.Model)
	if cfg.Display.ImagesEnabled() {
		fmt.Printf("║  Images          : %-19s ║\n", cfg.Display.SpritesDir)
	} else {
		fmt.Printf("║  Images          : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Status addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes integers as int.
func optInt(opts map[string]any, key string) int {
	n, _ := opts[key].(int)
	return n
}

// optBool extracts a boolean option.
func optBool(opts map[string]any, key string) bool {
	b, _ := opts[key].(bool)
	return b
}
