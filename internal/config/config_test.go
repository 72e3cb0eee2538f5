package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/brainball/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
mode: voice
audio:
  name: portaudio
  sample_rate: 16000
  frames_per_buffer: 1024
recognizer:
  name: vosk
  model: /opt/vosk-model
  chunk_frames: 8000
  partial_min_length: 3
  stop_timeout: 3s
resolver:
  remote:
    name: http
    base_url: http://backend:8080
  remote_timeout: 1500ms
  breaker:
    max_failures: 5
    reset_timeout: 30s
  embeddings:
    name: ollama
    base_url: http://localhost:11434
    model: nomic-embed-text
  local_matcher: embedding
  similarity_threshold: 0.55
  random_fallback: [dog, cat]
  reference_store_dsn: postgres://localhost/brainball
display:
  images: false
  sprites_dir: /srv/sprites
  image_size: 32
  cache_refresh_period: 2s
  render_interval: 50ms
  renderers: [log, websocket]
mic_level:
  chunk_frames: 512
  normalize: 6000
api:
  listen_addr: ":8181"
  max_text_length: 200
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Audio.Name != "portaudio" || cfg.Audio.FramesPerBuffer != 1024 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Recognizer.ChunkFrames != 8000 || cfg.Recognizer.PartialMinLength != 3 || cfg.Recognizer.StopTimeout != 3*time.Second {
		t.Errorf("recognizer = %+v", cfg.Recognizer)
	}
	rc := cfg.Resolver
	if rc.Remote.BaseURL != "http://backend:8080" || rc.RemoteTimeout != 1500*time.Millisecond {
		t.Errorf("remote = %+v, timeout %s", rc.Remote, rc.RemoteTimeout)
	}
	if rc.Breaker.MaxFailures != 5 || rc.Breaker.ResetTimeout != 30*time.Second {
		t.Errorf("breaker = %+v", rc.Breaker)
	}
	if rc.LocalMatcher != config.LocalMatcherEmbedding || rc.SimilarityThreshold != 0.55 {
		t.Errorf("local matcher = %q @ %v", rc.LocalMatcher, rc.SimilarityThreshold)
	}
	if !slices.Equal(rc.RandomFallback, []string{"dog", "cat"}) {
		t.Errorf("random_fallback = %v", rc.RandomFallback)
	}
	if cfg.Display.ImagesEnabled() {
		t.Error("images should be disabled")
	}
	if cfg.Display.ImageSize != 32 || cfg.Display.CacheRefreshPeriod != 2*time.Second || cfg.Display.RenderInterval != 50*time.Millisecond {
		t.Errorf("display = %+v", cfg.Display)
	}
	if !slices.Equal(cfg.Display.Renderers, []string{"log", "websocket"}) {
		t.Errorf("renderers = %v", cfg.Display.Renderers)
	}
	if cfg.MicLevel.ChunkFrames != 512 || cfg.MicLevel.Normalize != 6000 {
		t.Errorf("mic_level = %+v", cfg.MicLevel)
	}
	if cfg.API.ListenAddr != ":8181" || cfg.API.MaxTextLength != 200 {
		t.Errorf("api = %+v", cfg.API)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
recognizer:
  name: vosk
  model: ./model
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, config.DefaultStatusAddr},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"mode", cfg.Mode, config.ModeVoice},
		{"chunk_frames", cfg.Recognizer.ChunkFrames, 4000},
		{"partial_min_length", cfg.Recognizer.PartialMinLength, 2},
		{"stop_timeout", cfg.Recognizer.StopTimeout, 2 * time.Second},
		{"remote_timeout", cfg.Resolver.RemoteTimeout, 2 * time.Second},
		{"similarity_threshold", cfg.Resolver.SimilarityThreshold, 0.4},
		{"images", cfg.Display.ImagesEnabled(), true},
		{"image_size", cfg.Display.ImageSize, 16},
		{"cache_refresh_period", cfg.Display.CacheRefreshPeriod, time.Second},
		{"mic chunk_frames", cfg.MicLevel.ChunkFrames, 256},
		{"mic normalize", cfg.MicLevel.Normalize, 8000.0},
		{"max_text_length", cfg.API.MaxTextLength, 500},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if !slices.Equal(cfg.Resolver.RandomFallback, []string{"bird", "dog", "cat", "cow", "pig", "chicken"}) {
		t.Errorf("random_fallback = %v", cfg.Resolver.RandomFallback)
	}
	if !slices.Equal(cfg.Display.Renderers, []string{config.RendererLog}) {
		t.Errorf("renderers = %v", cfg.Display.Renderers)
	}
}

func TestLoadFromReader_MicLevelModeNeedsNoRecognizer(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("mode: mic_level\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Mode != config.ModeMicLevel {
		t.Errorf("mode = %q", cfg.Mode)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("mode: mic_level\ncolour: blue\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "brainball.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recognizer.Model != "/opt/vosk-model" {
		t.Errorf("model = %q", cfg.Recognizer.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "nope.yaml") {
		t.Errorf("err = %v, want path in message", err)
	}
}

func TestLoadAPI_SkipsDeviceRules(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "api.yaml")
	doc := "api:\n  listen_addr: \":9000\"\nresolver:\n  local_matcher: phonetic\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := config.Load(path); err == nil {
		t.Error("Load accepted a voice config without a recogniser")
	}
	cfg, err := config.LoadAPI(path)
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}
	if cfg.API.ListenAddr != ":9000" || cfg.API.MaxTextLength != config.DefaultMaxTextLength {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Resolver.LocalMatcher != config.LocalMatcherPhonetic {
		t.Errorf("local matcher = %q", cfg.Resolver.LocalMatcher)
	}
}

func TestLoadAPI_StillValidates(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "api.yaml")
	if err := os.WriteFile(path, []byte("resolver:\n  similarity_threshold: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.LoadAPI(path); err == nil || !strings.Contains(err.Error(), "similarity_threshold") {
		t.Errorf("err = %v, want similarity_threshold error", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Recognizer.Name != "vosk" || cfg.Resolver.LocalMatcher != config.LocalMatcherPhonetic {
		t.Errorf("recognizer=%q local_matcher=%q", cfg.Recognizer.Name, cfg.Resolver.LocalMatcher)
	}
	if !slices.Contains(cfg.Display.Renderers, config.RendererWebsocket) {
		t.Errorf("renderers = %v", cfg.Display.Renderers)
	}
}
