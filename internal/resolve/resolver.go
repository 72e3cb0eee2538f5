package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/internal/resilience"
)

const (
	// DefaultThreshold is the minimum similarity accepted from the local
	// matcher.
	DefaultThreshold = 0.4

	// DefaultRemoteTimeout bounds a single remote call.
	DefaultRemoteTimeout = 2 * time.Second
)

// Resolver runs the fallback chain. It is safe for concurrent use.
type Resolver struct {
	remote        RemoteResolver
	remoteTimeout time.Duration
	breaker       *resilience.CircuitBreaker

	local     LocalMatcher
	threshold atomic.Uint64 // math.Float64bits

	table      map[string]string
	randomKeys []string
	randIntN   func(n int) int

	metrics *observe.Metrics
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithRemote enables the remote tier.
func WithRemote(r RemoteResolver) Option {
	return func(res *Resolver) { res.remote = r }
}

// WithRemoteTimeout bounds each remote call. Defaults to 2s.
func WithRemoteTimeout(d time.Duration) Option {
	return func(res *Resolver) {
		if d > 0 {
			res.remoteTimeout = d
		}
	}
}

// WithBreaker guards the remote tier with cb. While cb is open the remote
// tier is skipped and treated as unreachable.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(res *Resolver) { res.breaker = cb }
}

// WithLocalMatcher enables the local similarity tier.
func WithLocalMatcher(m LocalMatcher) Option {
	return func(res *Resolver) { res.local = m }
}

// WithThreshold sets the minimum local similarity. Defaults to 0.4.
func WithThreshold(t float64) Option {
	return func(res *Resolver) { res.threshold.Store(math.Float64bits(t)) }
}

// WithStaticTable replaces the word table. Keys are matched trimmed and
// case-insensitively.
func WithStaticTable(table map[string]string) Option {
	return func(res *Resolver) { res.table = normalizeTable(table) }
}

// WithRandomKeys replaces the pool used on an unreachable remote.
func WithRandomKeys(keys []string) Option {
	return func(res *Resolver) {
		if len(keys) > 0 {
			res.randomKeys = append([]string(nil), keys...)
		}
	}
}

// WithRandIntN replaces the random source (for tests).
func WithRandIntN(f func(n int) int) Option {
	return func(res *Resolver) {
		if f != nil {
			res.randIntN = f
		}
	}
}

// WithMetrics records resolution metrics into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(res *Resolver) { res.metrics = m }
}

// New returns a Resolver with the default static table and random pool.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		remoteTimeout: DefaultRemoteTimeout,
		table:         normalizeTable(DefaultStaticTable),
		randomKeys:    append([]string(nil), DefaultRandomKeys...),
		randIntN:      rand.IntN,
	}
	r.threshold.Store(math.Float64bits(DefaultThreshold))
	for _, o := range opts {
		o(r)
	}
	return r
}

// Threshold returns the current local similarity threshold.
func (r *Resolver) Threshold() float64 { return math.Float64frombits(r.threshold.Load()) }

// SetThreshold changes the local similarity threshold at runtime.
func (r *Resolver) SetThreshold(t float64) { r.threshold.Store(math.Float64bits(t)) }

// Resolve maps word to an animal. It never returns an error; see [Result].
func (r *Resolver) Resolve(ctx context.Context, word string) Result {
	start := time.Now()
	ctx, span := observe.StartResolveSpan(ctx, word)

	res := r.resolve(ctx, word)

	observe.EndResolveSpan(span, res.Source.String(), res.AnimalKey, res.Confidence)
	if r.metrics != nil {
		r.metrics.RecordResolution(ctx, res.Source.String(), time.Since(start))
	}
	return res
}

func (r *Resolver) resolve(ctx context.Context, word string) Result {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" {
		return Result{Source: SourceNone}
	}
	log := observe.Logger(ctx).With("word", w)

	if r.remote != nil {
		tctx, span := observe.StartTierSpan(ctx, "remote")
		key, err := r.callRemote(tctx, w)
		switch {
		case err == nil && key != "":
			observe.EndTierSpan(span, "match", nil)
			return Result{AnimalKey: key, Confidence: 1, Source: SourceRemote}
		case err == nil:
			err = ErrUnavailable
			fallthrough
		default:
			class := classify(err)
			observe.EndTierSpan(span, remoteErrorKind(class), err)
			if r.metrics != nil {
				r.metrics.RecordRemoteError(ctx, remoteErrorKind(class))
			}
			if class == ErrUnreachable {
				key := r.randomKey()
				log.Warn("remote resolver unreachable, using random animal", "animal", key, "err", err)
				return Result{AnimalKey: key, Confidence: 0, Source: SourceRandomFallback, ErrorNote: UnreachableNote}
			}
			log.Debug("remote resolver declined, falling through", "err", err)
		}
	}

	if r.local != nil {
		tctx, span := observe.StartTierSpan(ctx, "local")
		key, sim, err := r.callLocal(tctx, w)
		threshold := r.Threshold()
		switch {
		case err != nil:
			observe.EndTierSpan(span, "error", err)
			log.Debug("local matcher failed, falling through", "err", err)
		case key != "" && sim >= 0 && sim >= threshold:
			observe.EndTierSpan(span, "match", nil)
			return Result{AnimalKey: key, Confidence: clamp01(sim), Source: SourceLocalEmbedding}
		default:
			observe.EndTierSpan(span, "below_threshold", nil)
			log.Debug("local matcher below threshold", "best", key, "similarity", sim, "threshold", threshold)
		}
	}

	if key, ok := r.table[w]; ok {
		return Result{AnimalKey: key, Confidence: 1, Source: SourceStaticMap}
	}
	return Result{Source: SourceNone}
}

// callRemote runs the remote tier under the breaker and the per-call
// timeout. A panic inside the resolver is reported as ErrUnavailable.
func (r *Resolver) callRemote(ctx context.Context, word string) (key string, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.remoteTimeout)
	defer cancel()

	call := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: remote resolver panicked: %v", ErrUnavailable, p)
			}
		}()
		key, err = r.remote.Resolve(ctx, word)
		if err != nil && ctx.Err() != nil && !errors.Is(err, ErrUnreachable) {
			err = fmt.Errorf("%w: %w", ErrUnreachable, err)
		}
		return err
	}

	if r.breaker == nil {
		return key, call()
	}

	// Only unreachable outcomes count against the breaker; an answer of
	// "invalid" or "unavailable" proves the backend is up.
	var callErr error
	bErr := r.breaker.Execute(func() error {
		callErr = call()
		if callErr != nil && errors.Is(callErr, ErrUnreachable) {
			return callErr
		}
		return nil
	})
	if errors.Is(bErr, resilience.ErrCircuitOpen) {
		return "", fmt.Errorf("%w: %w", ErrUnreachable, bErr)
	}
	return key, callErr
}

// callLocal runs the local tier. A panic is reported as an error.
func (r *Resolver) callLocal(ctx context.Context, word string) (key string, sim float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			key, sim, err = "", 0, fmt.Errorf("resolve: local matcher panicked: %v", p)
		}
	}()
	return r.local.Match(ctx, word)
}

func (r *Resolver) randomKey() string {
	return r.randomKeys[r.randIntN(len(r.randomKeys))]
}

func remoteErrorKind(class error) string {
	switch class {
	case ErrUnreachable:
		return "unreachable"
	case ErrInvalid:
		return "invalid"
	default:
		return "unavailable"
	}
}

// LogValue implements slog.LogValuer for compact result logging.
func (r Result) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("animal", r.AnimalKey),
		slog.String("source", r.Source.String()),
		slog.Float64("confidence", r.Confidence),
	}
	if r.ErrorNote != "" {
		attrs = append(attrs, slog.String("note", r.ErrorNote))
	}
	return slog.GroupValue(attrs...)
}
