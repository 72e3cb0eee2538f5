package phonetic

import (
	"context"
	"testing"

	"github.com/MrWong99/brainball/internal/resolve"
)

func TestMatch_ExactLabels(t *testing.T) {
	m := New(resolve.DefaultAnimals)
	for _, a := range resolve.DefaultAnimals {
		for _, l := range a.Labels {
			key, score, err := m.Match(context.Background(), l)
			if err != nil {
				t.Fatalf("Match(%q): %v", l, err)
			}
			if score != 1 {
				t.Errorf("Match(%q) score = %v, want 1", l, score)
			}
			// "bleat" is listed for both sheep and goat; sheep is registered first.
			if l != "bleat" && key != a.Key {
				t.Errorf("Match(%q) = %q, want %q", l, key, a.Key)
			}
			if l == "bleat" && key != "sheep" {
				t.Errorf("Match(bleat) = %q, want sheep", key)
			}
		}
	}
}

func TestMatch_SoundAlikes(t *testing.T) {
	m := New(resolve.DefaultAnimals)
	tests := []struct {
		word string
		want string
	}{
		{"kow", "cow"},
		{"piggy", "pig"},
		{"quak", "duck"},
		{"kitteh", "cat"},
		{"horsey", "horse"},
	}
	for _, tc := range tests {
		t.Run(tc.word, func(t *testing.T) {
			key, score, _ := m.Match(context.Background(), tc.word)
			if key != tc.want {
				t.Errorf("Match(%q) = %q (%.2f), want %q", tc.word, key, score, tc.want)
			}
			if score < 0 || score > 1 {
				t.Errorf("score %v out of range", score)
			}
		})
	}
}

func TestMatch_NoCandidate(t *testing.T) {
	m := New(resolve.DefaultAnimals)
	for _, w := range []string{"", "  ", "xylophone"} {
		key, score, err := m.Match(context.Background(), w)
		if err != nil || key != "" || score != 0 {
			t.Errorf("Match(%q) = %q, %v, %v; want no match", w, key, score, err)
		}
	}
}

func TestMatch_Thresholds(t *testing.T) {
	strict := New(resolve.DefaultAnimals, WithPhoneticThreshold(0.99), WithFuzzyThreshold(0.99))
	if key, _, _ := strict.Match(context.Background(), "kow"); key != "" {
		t.Errorf("strict matcher matched %q", key)
	}
}

func TestOverlap(t *testing.T) {
	a := codes("cow")
	b := codes("kow")
	if !overlap(a, b) {
		t.Errorf("codes(cow)=%v and codes(kow)=%v should overlap", a, b)
	}
	if overlap(codes("pig"), codes("duck")) {
		t.Error("pig and duck should not overlap")
	}
}
