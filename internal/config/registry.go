package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/pkg/audio"
	"github.com/MrWong99/brainball/pkg/provider/asr"
	"github.com/MrWong99/brainball/pkg/provider/embeddings"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// RemoteParams is what a remote-resolver factory receives.
type RemoteParams struct {
	Entry   ProviderEntry
	Timeout time.Duration

	// AnimalKeys is the closed set of keys the remote may answer with.
	AnimalKeys []string
}

// factories is one kind's name → constructor table.
type factories[C, T any] struct {
	kind string
	m    map[string]func(C) (T, error)
}

func newFactories[C, T any](kind string) factories[C, T] {
	return factories[C, T]{kind: kind, m: make(map[string]func(C) (T, error))}
}

func (f factories[C, T]) create(name string, cfg C) (T, error) {
	fn, ok := f.m[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return fn(cfg)
}

func (f factories[C, T]) names() []string {
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry maps backend names to constructors. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	audio      factories[AudioConfig, audio.Source]
	recognizer factories[RecognizerConfig, asr.Recognizer]
	embeddings factories[ProviderEntry, embeddings.Provider]
	remote     factories[RemoteParams, resolve.RemoteResolver]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		audio:      newFactories[AudioConfig, audio.Source]("audio"),
		recognizer: newFactories[RecognizerConfig, asr.Recognizer]("recognizer"),
		embeddings: newFactories[ProviderEntry, embeddings.Provider]("embeddings"),
		remote:     newFactories[RemoteParams, resolve.RemoteResolver]("remote"),
	}
}

// RegisterAudio registers an audio source factory. A later registration
// under the same name replaces the earlier one.
func (r *Registry) RegisterAudio(name string, fn func(AudioConfig) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.m[name] = fn
}

// RegisterRecognizer registers a speech recogniser factory.
func (r *Registry) RegisterRecognizer(name string, fn func(RecognizerConfig) (asr.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer.m[name] = fn
}

// RegisterEmbeddings registers an embeddings provider factory.
func (r *Registry) RegisterEmbeddings(name string, fn func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings.m[name] = fn
}

// RegisterRemote registers a remote resolver factory.
func (r *Registry) RegisterRemote(name string, fn func(RemoteParams) (resolve.RemoteResolver, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote.m[name] = fn
}

// CreateAudio builds the audio source named by cfg.Name.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio.create(cfg.Name, cfg)
}

// CreateRecognizer builds the recogniser named by cfg.Name.
func (r *Registry) CreateRecognizer(cfg RecognizerConfig) (asr.Recognizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recognizer.create(cfg.Name, cfg)
}

// RecognizerFactory returns an [asr.Factory] that builds the recogniser named
// by cfg.Name when first called.
func (r *Registry) RecognizerFactory(cfg RecognizerConfig) asr.Factory {
	return func() (asr.Recognizer, error) { return r.CreateRecognizer(cfg) }
}

// CreateEmbeddings builds the embeddings provider named by entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embeddings.create(entry.Name, entry)
}

// CreateRemote builds the remote resolver named by p.Entry.Name.
func (r *Registry) CreateRemote(p RemoteParams) (resolve.RemoteResolver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.remote.create(p.Entry.Name, p)
}

// Names lists the registered names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"audio":      r.audio.names(),
		"recognizer": r.recognizer.names(),
		"embeddings": r.embeddings.names(),
		"remote":     r.remote.names(),
	}
}
