package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/brainball/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"log level", "mode: mic_level\nserver:\n  log_level: loud\n", "server.log_level"},
		{"mode", "mode: dance\n", "mode \"dance\""},
		{"voice needs recognizer", "mode: voice\n", "recognizer.name is required"},
		{"recognizer needs model", "recognizer:\n  name: vosk\n", "recognizer.model is required"},
		{"negative partial", "mode: mic_level\nrecognizer:\n  partial_min_length: -1\n", "partial_min_length"},
		{"http remote base url", "mode: mic_level\nresolver:\n  remote:\n    name: http\n", "base_url is required"},
		{"llm remote model", "mode: mic_level\nresolver:\n  remote:\n    name: llm\n", "model is required for the llm remote"},
		{"local matcher", "mode: mic_level\nresolver:\n  local_matcher: psychic\n", "local_matcher \"psychic\""},
		{"embedding needs provider", "mode: mic_level\nresolver:\n  local_matcher: embedding\n", "requires resolver.embeddings.name"},
		{"threshold range", "mode: mic_level\nresolver:\n  similarity_threshold: 1.5\n", "similarity_threshold"},
		{"empty fallback key", "mode: mic_level\nresolver:\n  random_fallback: [dog, \"\"]\n", "random_fallback[1]"},
		{"image size", "mode: mic_level\ndisplay:\n  image_size: 1000\n", "display.image_size"},
		{"renderer", "mode: mic_level\ndisplay:\n  renderers: [lcd]\n", "display.renderers[0]"},
		{"negative refresh", "mode: mic_level\ndisplay:\n  cache_refresh_period: -1s\n", "cache_refresh_period"},
		{"negative normalize", "mode: mic_level\nmic_level:\n  normalize: -2\n", "mic_level.normalize"},
		{"negative max text", "mode: mic_level\napi:\n  max_text_length: -5\n", "api.max_text_length"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("err = %v, want mention of %q", err, tc.wantMsg)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "loud"},
		Mode:   "dance",
		Resolver: config.ResolverConfig{
			SimilarityThreshold: -1,
		},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "mode", "similarity_threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error lacks %q: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
audio:
  name: alsa-custom
recognizer:
  name: my-recognizer
  model: ./m
`))
	if err != nil {
		t.Errorf("unknown provider names should not fail validation: %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.Slog(); got != tt.want {
			t.Errorf("%q.Slog() = %v, want %v", tt.in, got, tt.want)
		}
	}
}
