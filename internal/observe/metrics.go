// Package observe provides observability primitives for brainball:
// OpenTelemetry metrics, tracing, trace-aware logging, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]. [DefaultMetrics] returns a package-level
// instance bound to the global provider; tests should use [NewMetrics] with
// their own [metric.MeterProvider].
package observe

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all brainball metrics.
const meterName = "github.com/MrWong99/brainball"

// Metrics holds the application's metric instruments.
type Metrics struct {
	// ResolveDuration tracks the latency of one full fallback-chain
	// resolution. Attribute: source.
	ResolveDuration metric.Float64Histogram

	// ResolveOutcomes counts resolutions by winning tier. Attribute: source.
	ResolveOutcomes metric.Int64Counter

	// RemoteErrors counts remote-tier failures. Attribute: kind
	// (unreachable, invalid, unavailable).
	RemoteErrors metric.Int64Counter

	// RecognitionWords counts words published by the recognition loop.
	// Attribute: kind (final, partial).
	RecognitionWords metric.Int64Counter

	// RecognitionErrors counts chunk-level recognition failures.
	RecognitionErrors metric.Int64Counter

	// ImageCacheLookups counts image cache reads. Attribute: result
	// (hit, refresh, miss).
	ImageCacheLookups metric.Int64Counter

	// MicLevel is the most recent normalised microphone level in [0, 1].
	MicLevel metric.Float64ObservableGauge

	// HTTPRequestDuration tracks status and API server latency. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram

	micLevel atomic.Uint64 // math.Float64bits
}

// latencyBuckets are histogram boundaries (seconds) sized for a resolver
// whose remote tier is capped at a couple of seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResolveDuration, err = m.Float64Histogram("brainball.resolve.duration",
		metric.WithDescription("Latency of resolving a word to an animal."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResolveOutcomes, err = m.Int64Counter("brainball.resolve.outcomes",
		metric.WithDescription("Resolutions by the tier that produced the answer."),
	); err != nil {
		return nil, err
	}
	if met.RemoteErrors, err = m.Int64Counter("brainball.remote.errors",
		metric.WithDescription("Remote resolver failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionWords, err = m.Int64Counter("brainball.recognition.words",
		metric.WithDescription("Words published by the recognition loop."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("brainball.recognition.errors",
		metric.WithDescription("Audio chunks that failed to read or decode."),
	); err != nil {
		return nil, err
	}
	if met.ImageCacheLookups, err = m.Int64Counter("brainball.imagecache.lookups",
		metric.WithDescription("Image cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.MicLevel, err = m.Float64ObservableGauge("brainball.mic.level",
		metric.WithDescription("Most recent normalised microphone level."),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(math.Float64frombits(met.micLevel.Load()))
			return nil
		}),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("brainball.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] bound to
// [otel.GetMeterProvider]. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordResolution records one finished resolution.
func (m *Metrics) RecordResolution(ctx context.Context, source string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.ResolveDuration.Record(ctx, d.Seconds(), attrs)
	m.ResolveOutcomes.Add(ctx, 1, attrs)
}

// RecordRemoteError counts a remote-tier failure of the given kind.
func (m *Metrics) RecordRemoteError(ctx context.Context, kind string) {
	m.RemoteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordWord counts a recognised word. final distinguishes committed
// results from partial hypotheses.
func (m *Metrics) RecordWord(ctx context.Context, final bool) {
	kind := "partial"
	if final {
		kind = "final"
	}
	m.RecognitionWords.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRecognitionError counts a failed chunk.
func (m *Metrics) RecordRecognitionError(ctx context.Context) {
	m.RecognitionErrors.Add(ctx, 1)
}

// RecordImageLookup counts an image cache lookup.
func (m *Metrics) RecordImageLookup(ctx context.Context, result string) {
	m.ImageCacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// SetMicLevel stores the value reported by the mic level gauge.
func (m *Metrics) SetMicLevel(level float64) {
	m.micLevel.Store(math.Float64bits(level))
}
