package resolve_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/internal/resilience"
	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/internal/resolve/mock"
)

func TestResolve_EmptyWordCallsNoTier(t *testing.T) {
	remote := &mock.RemoteResolver{Key: "cow"}
	local := &mock.LocalMatcher{Key: "cow", Similarity: 1}
	r := resolve.New(resolve.WithRemote(remote), resolve.WithLocalMatcher(local))

	for _, w := range []string{"", "   ", "\t"} {
		got := r.Resolve(context.Background(), w)
		if got.Source != resolve.SourceNone || got.Found() {
			t.Errorf("Resolve(%q) = %+v, want none", w, got)
		}
	}
	if remote.CallCount() != 0 || local.CallCount() != 0 {
		t.Errorf("tiers called: remote=%d local=%d", remote.CallCount(), local.CallCount())
	}
}

func TestResolve_StaticMapOnly(t *testing.T) {
	r := resolve.New()
	for word, want := range resolve.DefaultStaticTable {
		for _, variant := range []string{word, "  " + word + " ", strings.ToUpper(word)} {
			got := r.Resolve(context.Background(), variant)
			if got.AnimalKey != want || got.Source != resolve.SourceStaticMap || got.Confidence != 1 {
				t.Errorf("Resolve(%q) = %+v, want %s/static_map/1.0", variant, got, want)
			}
		}
	}
}

func TestResolve_UnknownWordNone(t *testing.T) {
	r := resolve.New()
	got := r.Resolve(context.Background(), "tractor")
	if got.Found() || got.Source != resolve.SourceNone || got.Confidence != 0 {
		t.Errorf("Resolve(tractor) = %+v, want none", got)
	}
}

func TestResolve_RemoteSuccess(t *testing.T) {
	remote := &mock.RemoteResolver{Key: "horse"}
	local := &mock.LocalMatcher{Key: "cow", Similarity: 1}
	r := resolve.New(resolve.WithRemote(remote), resolve.WithLocalMatcher(local))

	got := r.Resolve(context.Background(), "Neigh")
	if got.AnimalKey != "horse" || got.Source != resolve.SourceRemote || got.Confidence != 1 {
		t.Errorf("got %+v, want horse/remote", got)
	}
	if remote.Calls[0] != "neigh" {
		t.Errorf("remote got %q, want normalised %q", remote.Calls[0], "neigh")
	}
	if local.CallCount() != 0 {
		t.Error("local matcher should not be called after remote success")
	}
}

func TestResolve_RemoteUnreachableRandomFallback(t *testing.T) {
	remote := &mock.RemoteResolver{Err: fmt.Errorf("dial: %w", resolve.ErrUnreachable)}
	local := &mock.LocalMatcher{Key: "cow", Similarity: 1}
	r := resolve.New(
		resolve.WithRemote(remote),
		resolve.WithLocalMatcher(local),
		resolve.WithRandIntN(func(n int) int { return n - 1 }),
	)

	got := r.Resolve(context.Background(), "moo")
	if got.Source != resolve.SourceRandomFallback {
		t.Fatalf("source = %v, want random_fallback", got.Source)
	}
	if got.AnimalKey != "chicken" {
		t.Errorf("animal = %q, want last random key %q", got.AnimalKey, "chicken")
	}
	if got.ErrorNote != resolve.UnreachableNote {
		t.Errorf("note = %q, want %q", got.ErrorNote, resolve.UnreachableNote)
	}
	if local.CallCount() != 0 {
		t.Error("local matcher must not run after unreachable remote")
	}
}

func TestResolve_RandomKeyAlwaysFromPool(t *testing.T) {
	remote := &mock.RemoteResolver{Err: resolve.ErrUnreachable}
	r := resolve.New(resolve.WithRemote(remote))
	for range 50 {
		got := r.Resolve(context.Background(), "xyz")
		if !slices.Contains(resolve.DefaultRandomKeys, got.AnimalKey) {
			t.Fatalf("random key %q not in pool", got.AnimalKey)
		}
	}
}

func TestResolve_RemoteDeclinedFallsThrough(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid", resolve.ErrInvalid},
		{"unavailable", resolve.ErrUnavailable},
		{"unclassified", errors.New("weird")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			remote := &mock.RemoteResolver{Err: tc.err}
			local := &mock.LocalMatcher{Key: "pig", Similarity: 0.7}
			r := resolve.New(resolve.WithRemote(remote), resolve.WithLocalMatcher(local))
			got := r.Resolve(context.Background(), "snort")
			if got.AnimalKey != "pig" || got.Source != resolve.SourceLocalEmbedding {
				t.Errorf("got %+v, want pig/local_embedding", got)
			}
			if got.Confidence != 0.7 {
				t.Errorf("confidence = %v, want 0.7", got.Confidence)
			}
		})
	}
}

func TestResolve_RemoteEmptyKeyIsUnavailable(t *testing.T) {
	remote := &mock.RemoteResolver{Key: ""}
	r := resolve.New(resolve.WithRemote(remote))
	got := r.Resolve(context.Background(), "moo")
	if got.Source != resolve.SourceStaticMap || got.AnimalKey != "cow" {
		t.Errorf("got %+v, want cow/static_map", got)
	}
}

func TestResolve_LocalBelowThresholdFallsToStatic(t *testing.T) {
	local := &mock.LocalMatcher{Key: "dog", Similarity: 0.39}
	r := resolve.New(resolve.WithLocalMatcher(local))
	got := r.Resolve(context.Background(), "moo")
	if got.Source != resolve.SourceStaticMap || got.AnimalKey != "cow" {
		t.Errorf("got %+v, want cow/static_map", got)
	}
}

func TestResolve_LocalAtThresholdAccepted(t *testing.T) {
	local := &mock.LocalMatcher{Key: "dog", Similarity: 0.4}
	r := resolve.New(resolve.WithLocalMatcher(local))
	got := r.Resolve(context.Background(), "woofer")
	if got.Source != resolve.SourceLocalEmbedding || got.AnimalKey != "dog" {
		t.Errorf("got %+v, want dog/local_embedding", got)
	}
}

func TestResolve_NegativeSimilarityRejectedAtZeroThreshold(t *testing.T) {
	local := &mock.LocalMatcher{Key: "dog", Similarity: -0.2}
	r := resolve.New(resolve.WithLocalMatcher(local))
	r.SetThreshold(0)
	got := r.Resolve(context.Background(), "moo")
	if got.Source != resolve.SourceStaticMap || got.AnimalKey != "cow" {
		t.Errorf("got %+v, want cow/static_map", got)
	}
}

func TestResolve_LocalConfidenceClamped(t *testing.T) {
	local := &mock.LocalMatcher{Key: "cat", Similarity: 1.0000002}
	r := resolve.New(resolve.WithLocalMatcher(local))
	got := r.Resolve(context.Background(), "kitty")
	if got.Confidence < 0 || got.Confidence > 1 {
		t.Errorf("confidence %v out of [0,1]", got.Confidence)
	}
}

func TestResolve_LocalErrorFallsThrough(t *testing.T) {
	local := &mock.LocalMatcher{Err: errors.New("model offline")}
	r := resolve.New(resolve.WithLocalMatcher(local))
	got := r.Resolve(context.Background(), "quack")
	if got.Source != resolve.SourceStaticMap || got.AnimalKey != "duck" {
		t.Errorf("got %+v, want duck/static_map", got)
	}
}

func TestResolve_TierPanicsAreContained(t *testing.T) {
	remote := &mock.RemoteResolver{Panic: "remote exploded"}
	local := &mock.LocalMatcher{Panic: "local exploded"}
	r := resolve.New(resolve.WithRemote(remote), resolve.WithLocalMatcher(local))
	got := r.Resolve(context.Background(), "baa")
	if got.Source != resolve.SourceStaticMap || got.AnimalKey != "sheep" {
		t.Errorf("got %+v, want sheep/static_map", got)
	}
}

func TestResolve_CustomStaticTable(t *testing.T) {
	r := resolve.New(resolve.WithStaticTable(map[string]string{" Tweet ": "bird"}))
	if got := r.Resolve(context.Background(), "tweet"); got.AnimalKey != "bird" {
		t.Errorf("got %+v, want bird", got)
	}
	if got := r.Resolve(context.Background(), "moo"); got.Found() {
		t.Errorf("default table should be replaced, got %+v", got)
	}
}

func TestResolve_SetThreshold(t *testing.T) {
	local := &mock.LocalMatcher{Key: "goat", Similarity: 0.5}
	r := resolve.New(resolve.WithLocalMatcher(local), resolve.WithStaticTable(nil))
	if got := r.Resolve(context.Background(), "billy"); got.AnimalKey != "goat" {
		t.Fatalf("got %+v, want goat", got)
	}
	r.SetThreshold(0.6)
	if got := r.Resolve(context.Background(), "billy"); got.Found() {
		t.Errorf("after SetThreshold(0.6) got %+v, want none", got)
	}
}

// blockingRemote waits for ctx to expire and returns a plain error.
type blockingRemote struct{}

func (blockingRemote) Resolve(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestResolve_RemoteTimeoutIsUnreachable(t *testing.T) {
	r := resolve.New(
		resolve.WithRemote(blockingRemote{}),
		resolve.WithRemoteTimeout(20*time.Millisecond),
	)
	got := r.Resolve(context.Background(), "moo")
	if got.Source != resolve.SourceRandomFallback {
		t.Errorf("source = %v, want random_fallback on timeout", got.Source)
	}
}

func TestResolve_OpenBreakerSkipsRemote(t *testing.T) {
	remote := &mock.RemoteResolver{Err: resolve.ErrUnreachable}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "remote",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	r := resolve.New(resolve.WithRemote(remote), resolve.WithBreaker(cb))

	for range 2 {
		r.Resolve(context.Background(), "moo")
	}
	if cb.State() != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}

	got := r.Resolve(context.Background(), "moo")
	if got.Source != resolve.SourceRandomFallback {
		t.Errorf("source = %v, want random_fallback while open", got.Source)
	}
	if remote.CallCount() != 2 {
		t.Errorf("remote calls = %d, want 2 (third skipped by breaker)", remote.CallCount())
	}
}

func TestResolve_DeclinedDoesNotTripBreaker(t *testing.T) {
	remote := &mock.RemoteResolver{Err: resolve.ErrInvalid}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "remote", MaxFailures: 1})
	r := resolve.New(resolve.WithRemote(remote), resolve.WithBreaker(cb))
	for range 3 {
		r.Resolve(context.Background(), "moo")
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("breaker state = %v, want closed", cb.State())
	}
}

func TestSource_String(t *testing.T) {
	want := map[resolve.Source]string{
		resolve.SourceNone:           "none",
		resolve.SourceRemote:         "remote",
		resolve.SourceLocalEmbedding: "local_embedding",
		resolve.SourceStaticMap:      "static_map",
		resolve.SourceRandomFallback: "random_fallback",
		resolve.Source(42):           "unknown",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("Source(%d).String() = %q, want %q", int(s), s.String(), w)
		}
	}
}

func spanAttr(s tracetest.SpanStub, key attribute.Key) string {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestResolve_TierSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	remote := &mock.RemoteResolver{Err: resolve.ErrInvalid}
	local := &mock.LocalMatcher{Key: "pig", Similarity: 0.9}
	r := resolve.New(resolve.WithRemote(remote), resolve.WithLocalMatcher(local))
	r.Resolve(context.Background(), "snort")

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	remoteSpan, localSpan, root := spans[0], spans[1], spans[2]

	if root.Name != observe.SpanResolve || spanAttr(root, "source") != "local_embedding" || spanAttr(root, "animal") != "pig" {
		t.Errorf("resolve span = %s %v", root.Name, root.Attributes)
	}
	if remoteSpan.Name != observe.SpanTier || spanAttr(remoteSpan, "tier") != "remote" ||
		spanAttr(remoteSpan, "outcome") != "invalid" || remoteSpan.Status.Code != codes.Error {
		t.Errorf("remote tier span = %v status %v", remoteSpan.Attributes, remoteSpan.Status)
	}
	if spanAttr(localSpan, "tier") != "local" || spanAttr(localSpan, "outcome") != "match" {
		t.Errorf("local tier span = %v", localSpan.Attributes)
	}
	for _, s := range []tracetest.SpanStub{remoteSpan, localSpan} {
		if s.Parent.SpanID() != root.SpanContext.SpanID() {
			t.Errorf("%s is not a child of the resolve span", spanAttr(s, "tier"))
		}
	}
}
