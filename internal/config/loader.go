package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/brainball/internal/resolve"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultStatusAddr         = ":8090"
	DefaultAPIAddr            = ":8080"
	DefaultMaxTextLength      = 500
	DefaultChunkFrames        = 4000
	DefaultPartialMinLength   = 2
	DefaultStopTimeout        = 2 * time.Second
	DefaultImageSize          = 16
	DefaultCacheRefresh       = time.Second
	DefaultRenderInterval     = 100 * time.Millisecond
	DefaultMicChunkFrames     = 256
	DefaultMicNormalize       = 8000.0
	DefaultSpritesDir         = "assets/sprites"
	DefaultBreakerMaxFailures = 3
	DefaultBreakerReset       = 10 * time.Second
)

// ValidProviderNames lists the built-in backend names per kind. [Validate]
// warns about names outside this list since third-party factories may be
// registered at runtime.
var ValidProviderNames = map[string][]string{
	"audio":      {"portaudio"},
	"recognizer": {"vosk", "whisper-native"},
	"embeddings": {"openai", "ollama"},
	"remote":     {"http", "llm"},
}

// Load reads, defaults and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, rejecting unknown fields, then applies
// defaults and validates. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	return load(r, true)
}

// LoadAPI reads the YAML file at path for the text-to-animal service. It
// skips the device-only rules (a recogniser in voice mode); everything else
// is validated as in [Load].
func LoadAPI(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := load(f, false)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

func load(r io.Reader, device bool) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := validate(cfg, device); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultStatusAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeVoice
	}

	if cfg.Recognizer.ChunkFrames == 0 {
		cfg.Recognizer.ChunkFrames = DefaultChunkFrames
	}
	if cfg.Recognizer.PartialMinLength == 0 {
		cfg.Recognizer.PartialMinLength = DefaultPartialMinLength
	}
	if cfg.Recognizer.StopTimeout == 0 {
		cfg.Recognizer.StopTimeout = DefaultStopTimeout
	}

	rc := &cfg.Resolver
	if rc.RemoteTimeout == 0 {
		rc.RemoteTimeout = resolve.DefaultRemoteTimeout
	}
	if rc.Breaker.MaxFailures == 0 {
		rc.Breaker.MaxFailures = DefaultBreakerMaxFailures
	}
	if rc.Breaker.ResetTimeout == 0 {
		rc.Breaker.ResetTimeout = DefaultBreakerReset
	}
	if rc.SimilarityThreshold == 0 {
		rc.SimilarityThreshold = resolve.DefaultThreshold
	}
	if len(rc.RandomFallback) == 0 {
		rc.RandomFallback = slices.Clone(resolve.DefaultRandomKeys)
	}

	d := &cfg.Display
	if d.Images == nil {
		on := true
		d.Images = &on
	}
	if d.SpritesDir == "" {
		d.SpritesDir = DefaultSpritesDir
	}
	if d.ImageSize == 0 {
		d.ImageSize = DefaultImageSize
	}
	if d.CacheRefreshPeriod == 0 {
		d.CacheRefreshPeriod = DefaultCacheRefresh
	}
	if d.RenderInterval == 0 {
		d.RenderInterval = DefaultRenderInterval
	}
	if len(d.Renderers) == 0 {
		d.Renderers = []string{RendererLog}
	}

	if cfg.MicLevel.ChunkFrames == 0 {
		cfg.MicLevel.ChunkFrames = DefaultMicChunkFrames
	}
	if cfg.MicLevel.Normalize == 0 {
		cfg.MicLevel.Normalize = DefaultMicNormalize
	}

	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = DefaultAPIAddr
	}
	if cfg.API.MaxTextLength == 0 {
		cfg.API.MaxTextLength = DefaultMaxTextLength
	}
}

// Validate checks cfg for contradictions and out-of-range values. All
// problems are reported together as a joined error.
func Validate(cfg *Config) error { return validate(cfg, true) }

func validate(cfg *Config, device bool) error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		fail("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Mode != "" && !cfg.Mode.IsValid() {
		fail("mode %q is invalid; valid values: voice, mic_level", cfg.Mode)
	}

	validateProviderName("audio", cfg.Audio.Name)
	validateProviderName("recognizer", cfg.Recognizer.Name)
	validateProviderName("embeddings", cfg.Resolver.Embeddings.Name)
	validateProviderName("remote", cfg.Resolver.Remote.Name)

	if cfg.Audio.SampleRate < 0 {
		fail("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FramesPerBuffer < 0 {
		fail("audio.frames_per_buffer %d must not be negative", cfg.Audio.FramesPerBuffer)
	}

	rec := cfg.Recognizer
	if device && cfg.Mode == ModeVoice && rec.Name == "" {
		fail("recognizer.name is required in voice mode")
	}
	if rec.Name != "" && rec.Model == "" {
		fail("recognizer.model is required when recognizer.name is set")
	}
	if rec.ChunkFrames < 0 {
		fail("recognizer.chunk_frames %d must not be negative", rec.ChunkFrames)
	}
	if rec.PartialMinLength < 0 {
		fail("recognizer.partial_min_length %d must not be negative", rec.PartialMinLength)
	}
	if rec.StopTimeout < 0 {
		fail("recognizer.stop_timeout %s must not be negative", rec.StopTimeout)
	}

	rc := cfg.Resolver
	switch rc.Remote.Name {
	case "http":
		if rc.Remote.BaseURL == "" {
			fail("resolver.remote.base_url is required for the http remote")
		}
	case "llm":
		if rc.Remote.Model == "" {
			fail("resolver.remote.model is required for the llm remote")
		}
	}
	if rc.RemoteTimeout < 0 {
		fail("resolver.remote_timeout %s must not be negative", rc.RemoteTimeout)
	}
	if rc.Breaker.MaxFailures < 0 {
		fail("resolver.breaker.max_failures %d must not be negative", rc.Breaker.MaxFailures)
	}
	if !rc.LocalMatcher.IsValid() {
		fail("resolver.local_matcher %q is invalid; valid values: embedding, phonetic or empty", rc.LocalMatcher)
	}
	if rc.LocalMatcher == LocalMatcherEmbedding && rc.Embeddings.Name == "" {
		fail("resolver.local_matcher embedding requires resolver.embeddings.name")
	}
	if rc.SimilarityThreshold < 0 || rc.SimilarityThreshold > 1 {
		fail("resolver.similarity_threshold %.2f is out of range [0, 1]", rc.SimilarityThreshold)
	}
	for i, k := range rc.RandomFallback {
		if strings.TrimSpace(k) == "" {
			fail("resolver.random_fallback[%d] is empty", i)
		}
	}
	if rc.ReferenceStoreDSN != "" && rc.LocalMatcher != LocalMatcherEmbedding {
		slog.Warn("resolver.reference_store_dsn is set but the embedding matcher is not enabled; the store will not be used")
	}

	d := cfg.Display
	if d.ImageSize < 0 || d.ImageSize > 256 {
		fail("display.image_size %d is out of range [1, 256]", d.ImageSize)
	}
	if d.CacheRefreshPeriod < 0 {
		fail("display.cache_refresh_period %s must not be negative", d.CacheRefreshPeriod)
	}
	if d.RenderInterval < 0 {
		fail("display.render_interval %s must not be negative", d.RenderInterval)
	}
	for i, r := range d.Renderers {
		if r != RendererLog && r != RendererWebsocket {
			fail("display.renderers[%d] %q is invalid; valid values: log, websocket", i, r)
		}
	}
	if slices.Contains(d.Renderers, RendererWebsocket) && cfg.Server.ListenAddr == "" {
		fail("display.renderers websocket requires server.listen_addr")
	}

	if cfg.MicLevel.ChunkFrames < 0 {
		fail("mic_level.chunk_frames %d must not be negative", cfg.MicLevel.ChunkFrames)
	}
	if cfg.MicLevel.Normalize < 0 {
		fail("mic_level.normalize %.1f must not be negative", cfg.MicLevel.Normalize)
	}
	if cfg.API.MaxTextLength < 0 {
		fail("api.max_text_length %d must not be negative", cfg.API.MaxTextLength)
	}

	return errors.Join(errs...)
}

// validateProviderName warns when name is set but not a built-in.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
