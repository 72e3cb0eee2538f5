package embedmatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/brainball/internal/refstore"
	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/internal/resolve/embedmatch"
	"github.com/MrWong99/brainball/pkg/provider/embeddings/mock"
)

var farm = []resolve.Animal{
	{Key: "cow", Labels: []string{"cow", "moo"}},
	{Key: "pig", Labels: []string{"pig", "oink"}},
	{Key: "duck", Labels: []string{"duck", "quack"}},
}

func newProvider() *mock.Provider {
	return &mock.Provider{
		Vectors: map[string][]float32{
			"cow":   {1, 0, 0},
			"pig":   {0, 1, 0},
			"duck":  {0, 0, 1},
			"moo":   {0.9, 0.1, 0},
			"oink":  {0.2, 0.8, 0},
			"zero":  {0, 0, 0},
			"tie":   {1, 1, 0},
			"minus": {-1, 0, 0},
		},
		ModelIDValue: "test-embed-v1",
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := embedmatch.New(nil, farm, nil); err == nil {
		t.Error("expected error for nil provider")
	}
	_, err := embedmatch.New(newProvider(), []resolve.Animal{{Key: "x"}, {Labels: []string{"y"}}}, nil)
	if !errors.Is(err, embedmatch.ErrNoReferences) {
		t.Errorf("err = %v, want ErrNoReferences", err)
	}
}

func TestMatch_BestSimilarity(t *testing.T) {
	m, err := embedmatch.New(newProvider(), farm, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		word string
		want string
	}{
		{"moo", "cow"},
		{"oink", "pig"},
		{"Duck", "duck"},
	}
	for _, tc := range tests {
		key, sim, err := m.Match(context.Background(), tc.word)
		if err != nil {
			t.Fatalf("Match(%q): %v", tc.word, err)
		}
		if key != tc.want {
			t.Errorf("Match(%q) = %q, want %q", tc.word, key, tc.want)
		}
		if sim < -1.0000001 || sim > 1.0000001 {
			t.Errorf("Match(%q) similarity %v out of range", tc.word, sim)
		}
	}
}

func TestMatch_TieGoesToFirstRegistered(t *testing.T) {
	m, _ := embedmatch.New(newProvider(), farm, nil)
	key, _, err := m.Match(context.Background(), "tie")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if key != "cow" {
		t.Errorf("key = %q, want cow (registered before pig)", key)
	}
}

func TestMatch_ZeroNormScoresZero(t *testing.T) {
	m, _ := embedmatch.New(newProvider(), farm, nil)
	_, sim, err := m.Match(context.Background(), "zero")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if sim != 0 {
		t.Errorf("similarity = %v, want 0", sim)
	}
}

func TestMatch_NegativeSimilarityFailsZeroThreshold(t *testing.T) {
	m, _ := embedmatch.New(newProvider(), []resolve.Animal{{Key: "cow", Labels: []string{"cow"}}}, nil)
	_, sim, err := m.Match(context.Background(), "minus")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if sim >= 0 {
		t.Fatalf("similarity = %v, want negative", sim)
	}

	r := resolve.New(resolve.WithLocalMatcher(m), resolve.WithThreshold(0))
	if got := r.Resolve(context.Background(), "minus"); got.Source != resolve.SourceNone || got.AnimalKey != "" {
		t.Errorf("Resolve(minus) at threshold 0 = %+v, want no match", got)
	}
}

func TestMatch_ReferencesEmbeddedOnceAndStored(t *testing.T) {
	p := newProvider()
	store := refstore.NewMemory()
	m, _ := embedmatch.New(p, farm, store)

	for range 3 {
		if _, _, err := m.Match(context.Background(), "moo"); err != nil {
			t.Fatalf("Match: %v", err)
		}
	}
	if p.BatchCallCount() != 1 {
		t.Errorf("EmbedBatch calls = %d, want 1", p.BatchCallCount())
	}
	if got := p.EmbedBatchCalls[0]; len(got) != 3 || got[0] != "cow" || got[1] != "pig" || got[2] != "duck" {
		t.Errorf("batch texts = %v, want primary labels only", got)
	}
	if store.Len() != 3 {
		t.Errorf("store len = %d, want 3", store.Len())
	}

	// A second matcher over the same store must not re-embed.
	p2 := newProvider()
	m2, _ := embedmatch.New(p2, farm, store)
	if err := m2.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if p2.BatchCallCount() != 0 {
		t.Errorf("second matcher EmbedBatch calls = %d, want 0", p2.BatchCallCount())
	}
}

func TestMatch_ReferenceFailureRetries(t *testing.T) {
	p := newProvider()
	p.EmbedBatchErr = errors.New("model loading")
	m, _ := embedmatch.New(p, farm, nil)

	if _, _, err := m.Match(context.Background(), "moo"); err == nil {
		t.Fatal("expected error while references cannot be embedded")
	}
	p.EmbedBatchErr = nil
	key, _, err := m.Match(context.Background(), "moo")
	if err != nil || key != "cow" {
		t.Errorf("after recovery got %q, %v; want cow", key, err)
	}
}

func TestMatch_EmbedErrorPropagates(t *testing.T) {
	p := newProvider()
	m, _ := embedmatch.New(p, farm, nil)
	_ = m.Warm(context.Background())
	p.EmbedErr = errors.New("boom")
	if _, _, err := m.Match(context.Background(), "moo"); err == nil {
		t.Error("expected embed error")
	}
}

func TestMatch_InResolverChain(t *testing.T) {
	m, _ := embedmatch.New(newProvider(), farm, nil)
	r := resolve.New(resolve.WithLocalMatcher(m), resolve.WithStaticTable(nil))

	got := r.Resolve(context.Background(), "moo")
	if got.AnimalKey != "cow" || got.Source != resolve.SourceLocalEmbedding {
		t.Errorf("got %+v, want cow/local_embedding", got)
	}
	if got.Confidence < 0.4 || got.Confidence > 1 {
		t.Errorf("confidence = %v", got.Confidence)
	}
}
