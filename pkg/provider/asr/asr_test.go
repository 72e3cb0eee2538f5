package asr_test

import (
	"testing"

	"github.com/MrWong99/brainball/pkg/provider/asr"
)

func TestFirstWord(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cow jumps over", "cow"},
		{"  MOO  ", "moo"},
		{"", ""},
		{"   \t ", ""},
		{"dog\tcat", "dog"},
	}
	for _, tc := range tests {
		if got := asr.FirstWord(tc.in); got != tc.want {
			t.Errorf("FirstWord(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
