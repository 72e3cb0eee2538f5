// Package app wires the brainball subsystems into a running device.
//
// New builds the resolver chain, the display pipeline, the input worker
// (recognition loop or mic-level meter), the renderers and the status server
// from the config and the providers created by main.go. Run drives the
// render loop and the status server until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSpriteFS,
// WithReferenceStore, WithRenderer, etc.). When an option is not provided,
// New creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/brainball/internal/config"
	"github.com/MrWong99/brainball/internal/display"
	"github.com/MrWong99/brainball/internal/health"
	"github.com/MrWong99/brainball/internal/imagecache"
	"github.com/MrWong99/brainball/internal/miclevel"
	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/internal/recognition"
	"github.com/MrWong99/brainball/internal/refstore"
	"github.com/MrWong99/brainball/internal/render"
	"github.com/MrWong99/brainball/internal/resilience"
	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/internal/sprite"
	"github.com/MrWong99/brainball/pkg/audio"
	"github.com/MrWong99/brainball/pkg/provider/asr"
	"github.com/MrWong99/brainball/pkg/provider/embeddings"
)

// Providers holds one value per pluggable backend. Nil means the backend is
// not configured. Populated by main.go via the config registry.
type Providers struct {
	// Audio is the capture device. Required.
	Audio audio.Source

	// Recognizer builds the speech recogniser on the first Start. Required
	// in voice mode.
	Recognizer asr.Factory

	// Remote is the optional first resolver tier.
	Remote resolve.RemoteResolver

	// Embeddings backs the embedding local matcher.
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Injected or defaulted in New.
	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar
	spriteFS       fs.FS
	refStore       refstore.Store
	matcher        resolve.LocalMatcher
	extra          []render.Renderer
	randIntN       func(n int) int
	watcher        *config.Watcher

	// Subsystems, initialised in New and torn down in Shutdown.
	breaker   *resilience.CircuitBreaker
	resolver  *resolve.Resolver
	builder   *display.Builder
	presenter *presenter
	loop      *recognition.Loop
	meter     *miclevel.Meter
	hub       *render.Hub
	renderer  render.Renderer
	health    *health.Handler
	handler   http.Handler

	images atomic.Bool

	mu   sync.Mutex
	last *display.Content

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics on the status server.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets config reloads change the level of the handler built
// around v.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithSpriteFS reads sprites from fsys instead of display.sprites_dir.
func WithSpriteFS(fsys fs.FS) Option {
	return func(a *App) { a.spriteFS = fsys }
}

// WithReferenceStore injects the reference-embedding store instead of opening
// resolver.reference_store_dsn.
func WithReferenceStore(s refstore.Store) Option {
	return func(a *App) { a.refStore = s }
}

// WithLocalMatcher injects the local matcher instead of building the one
// named by resolver.local_matcher.
func WithLocalMatcher(m resolve.LocalMatcher) Option {
	return func(a *App) { a.matcher = m }
}

// WithRenderer adds r to the configured renderers.
func WithRenderer(r render.Renderer) Option {
	return func(a *App) { a.extra = append(a.extra, r) }
}

// WithRandIntN replaces the random source used for fallback animals and
// sprite variants.
func WithRandIntN(f func(n int) int) Option {
	return func(a *App) { a.randIntN = f }
}

// WithWatcher polls w during Run. Its change callback is expected to call
// [App.ApplyConfig].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: reference store connection,
// reference embedding warm-up, sprite discovery and server setup. Audio and
// the recogniser are only touched by Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Audio == nil {
		return nil, errors.New("app: an audio source is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.images.Store(cfg.Display.ImagesEnabled())

	// ── 1. Resolver chain ────────────────────────────────────────────────
	if err := a.initResolver(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init resolver: %w", err)
	}

	// ── 2. Display pipeline ──────────────────────────────────────────────
	a.initDisplay()

	// ── 3. Input worker ──────────────────────────────────────────────────
	if err := a.initInput(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init input: %w", err)
	}

	// ── 4. Renderers ─────────────────────────────────────────────────────
	a.initRenderers()

	// ── 5. Status server ─────────────────────────────────────────────────
	a.initStatus()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initResolver builds the remote tier with its breaker, the local matcher
// and the reference store it needs.
func (a *App) initResolver(ctx context.Context) error {
	rc := a.cfg.Resolver
	opts := []resolve.Option{
		resolve.WithThreshold(rc.SimilarityThreshold),
		resolve.WithRandomKeys(rc.RandomFallback),
		resolve.WithMetrics(a.metrics),
	}
	if a.randIntN != nil {
		opts = append(opts, resolve.WithRandIntN(a.randIntN))
	}

	if a.providers.Remote != nil {
		a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "remote:" + rc.Remote.Name,
			MaxFailures:  rc.Breaker.MaxFailures,
			ResetTimeout: rc.Breaker.ResetTimeout,
			OnStateChange: func(name string, to resilience.State) {
				slog.Info("remote resolver breaker changed state", "breaker", name, "state", to)
			},
		})
		opts = append(opts,
			resolve.WithRemote(a.providers.Remote),
			resolve.WithRemoteTimeout(rc.RemoteTimeout),
			resolve.WithBreaker(a.breaker),
		)
	}

	if a.matcher == nil && rc.LocalMatcher == config.LocalMatcherEmbedding {
		if a.refStore == nil {
			store, closeStore, err := OpenReferenceStore(ctx, rc.ReferenceStoreDSN)
			if err != nil {
				return err
			}
			a.refStore = store
			a.closers = append(a.closers, func() error { closeStore(); return nil })
		}
		m, err := NewLocalMatcher(ctx, rc, a.providers.Embeddings, a.refStore)
		if err != nil {
			return err
		}
		a.matcher = m
	} else if a.matcher == nil {
		m, err := NewLocalMatcher(ctx, rc, a.providers.Embeddings, nil)
		if err != nil {
			return err
		}
		a.matcher = m
	}
	if a.matcher != nil {
		opts = append(opts, resolve.WithLocalMatcher(a.matcher))
	}

	a.resolver = resolve.New(opts...)
	slog.Info("resolver ready",
		"remote", rc.Remote.Name,
		"local_matcher", rc.LocalMatcher,
		"threshold", a.resolver.Threshold(),
	)
	return nil
}

// initDisplay creates the image cache, the sprite loader and the builder.
func (a *App) initDisplay() {
	d := a.cfg.Display
	cache := imagecache.New(
		imagecache.WithPeriod(d.CacheRefreshPeriod),
		imagecache.WithSize(d.ImageSize, d.ImageSize),
		imagecache.WithMetrics(a.metrics),
	)

	fsys := a.spriteFS
	if fsys == nil {
		fsys = os.DirFS(d.SpritesDir)
	}
	spriteOpts := []sprite.Option{sprite.WithSize(d.ImageSize, d.ImageSize)}
	if a.randIntN != nil {
		spriteOpts = append(spriteOpts, sprite.WithRandIntN(a.randIntN))
	}
	sprites := sprite.New(fsys, spriteOpts...)
	if keys, err := sprites.Keys(); err != nil {
		slog.Warn("sprites unavailable, words will show as text", "dir", d.SpritesDir, "err", err)
	} else {
		slog.Info("sprites loaded", "dir", d.SpritesDir, "animals", len(keys))
	}

	a.builder = display.NewBuilder(a.resolver, cache, sprites.Fetch)
	a.presenter = newPresenter(a.resolver, a.builder)
}

// initInput creates the recognition loop or the mic-level meter.
func (a *App) initInput() error {
	if a.cfg.Mode == config.ModeMicLevel {
		a.meter = miclevel.New(a.providers.Audio,
			miclevel.WithChunkFrames(a.cfg.MicLevel.ChunkFrames),
			miclevel.WithNormalize(a.cfg.MicLevel.Normalize),
			miclevel.WithMetrics(a.metrics),
		)
		return nil
	}

	if a.providers.Recognizer == nil {
		return errors.New("voice mode requires a recogniser")
	}
	rc := a.cfg.Recognizer
	a.loop = recognition.New(a.providers.Audio, a.providers.Recognizer,
		recognition.WithChunkFrames(rc.ChunkFrames),
		recognition.WithPartialMinLength(rc.PartialMinLength),
		recognition.WithStopTimeout(rc.StopTimeout),
		recognition.WithMetrics(a.metrics),
	)
	return nil
}

// initRenderers builds the configured outputs.
func (a *App) initRenderers() {
	var rs render.Multi
	for _, name := range a.cfg.Display.Renderers {
		switch name {
		case config.RendererLog:
			rs = append(rs, render.NewLog(slog.Default()))
		case config.RendererWebsocket:
			if a.hub == nil {
				a.hub = render.NewHub()
				a.closers = append(a.closers, a.hub.Close)
				rs = append(rs, a.hub)
			}
		default:
			slog.Warn("unknown renderer ignored", "renderer", name)
		}
	}
	a.renderer = append(rs, a.extra...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the input worker, the render loop and the status server, and
// blocks until ctx is cancelled or one of them fails. In voice mode a
// recognition start failure is returned before anything else runs.
func (a *App) Run(ctx context.Context) error {
	if a.loop != nil {
		if err := a.loop.Start(ctx); err != nil {
			return fmt.Errorf("app: start recognition: %w", err)
		}
	} else if err := a.providers.Audio.Initialize(); err != nil {
		slog.Warn("audio initialise failed, mic level will read zero", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.renderLoop(gctx) })
	if a.loop != nil {
		g.Go(func() error { return a.presenter.run(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	if a.cfg.Server.ListenAddr != "" {
		g.Go(func() error { return a.serveStatus(gctx) })
	}

	slog.Info("app running",
		"mode", a.cfg.Mode,
		"status_addr", a.cfg.Server.ListenAddr,
		"images", a.images.Load(),
	)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// renderLoop builds and renders one frame per display.render_interval.
func (a *App) renderLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.Display.RenderInterval)
	defer t.Stop()
	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			a.tick(ctx)
		}
	}
}

// tick renders one frame. Render errors are logged; the loop carries on.
func (a *App) tick(ctx context.Context) {
	var c display.Content
	if a.meter != nil {
		c = a.meter.Content(ctx)
	} else {
		c = a.presenter.content(ctx, a.loop.CurrentWord(), a.images.Load())
	}

	a.mu.Lock()
	a.last = &c
	a.mu.Unlock()

	if err := a.renderer.Render(ctx, c); err != nil {
		slog.Warn("render failed", "err", err)
	}
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the live-reloadable differences between old and new:
// log level, images, similarity threshold and partial debounce length.
// Other changes are logged as needing a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ImagesChanged {
		a.images.Store(d.NewImages)
		slog.Info("images toggled", "enabled", d.NewImages)
	}
	if d.ThresholdChanged {
		a.resolver.SetThreshold(d.NewThreshold)
		a.presenter.invalidate()
		slog.Info("similarity threshold changed", "threshold", d.NewThreshold)
	}
	if d.PartialMinLengthChanged && a.loop != nil {
		a.loop.SetPartialMinLength(d.NewPartialMinLength)
		slog.Info("partial min length changed", "length", d.NewPartialMinLength)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the input worker, releases the recogniser and runs the
// closers in order. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned along with any closer errors.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.loop != nil {
			if err := a.loop.Close(); err != nil {
				errs = append(errs, fmt.Errorf("app: close recogniser: %w", err))
			}
		}
		if a.meter != nil {
			a.meter.Stop()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}

		if t, ok := a.providers.Audio.(interface{ Terminate() error }); ok {
			if err := t.Terminate(); err != nil {
				errs = append(errs, fmt.Errorf("app: terminate audio: %w", err))
			}
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// closeAll runs the closers gathered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
