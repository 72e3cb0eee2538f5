package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/brainball/internal/config"
)

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a, b := mustLoad(t, fullYAML), mustLoad(t, fullYAML)
	if d := config.Diff(a, b); d.Changed() {
		t.Errorf("diff of identical configs = %+v", d)
	}
}

func TestDiff_LiveFields(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, "mode: mic_level\n")
	updated := mustLoad(t, `
mode: mic_level
server:
  log_level: debug
display:
  images: false
resolver:
  similarity_threshold: 0.7
recognizer:
  partial_min_length: 4
`)
	d := config.Diff(old, updated)

	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %v %q", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.ImagesChanged || d.NewImages {
		t.Errorf("images diff = %v %v", d.ImagesChanged, d.NewImages)
	}
	if !d.ThresholdChanged || d.NewThreshold != 0.7 {
		t.Errorf("threshold diff = %v %v", d.ThresholdChanged, d.NewThreshold)
	}
	if !d.PartialMinLengthChanged || d.NewPartialMinLength != 4 {
		t.Errorf("partial diff = %v %v", d.PartialMinLengthChanged, d.NewPartialMinLength)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("live-only changes reported as restart: %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, "mode: mic_level\n")
	updated := mustLoad(t, `
mode: mic_level
audio:
  name: portaudio
resolver:
  remote:
    name: http
    base_url: http://other:8080
api:
  max_text_length: 100
`)
	d := config.Diff(old, updated)
	want := []string{"audio", "resolver", "api"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged || d.ThresholdChanged {
		t.Errorf("unexpected live diff: %+v", d)
	}
}
