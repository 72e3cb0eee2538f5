// Package llmremote implements resolve.RemoteResolver by asking a chat model
// to pick the animal a word refers to. Any backend supported by any-llm-go can
// be used; brainball wires "openai" and "ollama".
//
// The model is constrained to answer with exactly one key from a fixed list.
// Answers outside the list are reported as ErrUnavailable so the resolver
// falls through to its local tiers.
package llmremote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"unicode"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/brainball/internal/resolve"
)

// noneAnswer is what the model is told to say when nothing fits.
const noneAnswer = "none"

type completeFunc func(ctx context.Context, params anyllmlib.CompletionParams) (string, error)

// Resolver asks a chat model for the animal key.
type Resolver struct {
	model    string
	keys     []string
	complete completeFunc
}

// New creates a Resolver. providerName is "openai" or "ollama"; keys is the
// closed set of animal keys the model may answer with.
func New(providerName, model string, keys []string, opts ...anyllmlib.Option) (*Resolver, error) {
	if model == "" {
		return nil, fmt.Errorf("llmremote: model must not be empty")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("llmremote: at least one animal key is required")
	}
	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("llmremote: create %q backend: %w", providerName, err)
	}
	complete := func(ctx context.Context, params anyllmlib.CompletionParams) (string, error) {
		resp, err := backend.Completion(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errEmptyChoices
		}
		return resp.Choices[0].Message.ContentString(), nil
	}
	return newResolver(model, keys, complete), nil
}

func newResolver(model string, keys []string, complete completeFunc) *Resolver {
	norm := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && !slices.Contains(norm, k) {
			norm = append(norm, k)
		}
	}
	return &Resolver{model: model, keys: norm, complete: complete}
}

var errEmptyChoices = errors.New("empty choices in response")

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, ollama", providerName)
	}
}

// Resolve implements resolve.RemoteResolver.
func (r *Resolver) Resolve(ctx context.Context, word string) (string, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", fmt.Errorf("llmremote: empty word: %w", resolve.ErrInvalid)
	}

	zero := 0.0
	maxTokens := 8
	params := anyllmlib.CompletionParams{
		Model: r.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: r.systemPrompt()},
			{Role: anyllmlib.RoleUser, Content: word},
		},
		Temperature: &zero,
		MaxTokens:   &maxTokens,
	}

	answer, err := r.complete(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmremote: completion: %w: %w", classify(ctx, err), err)
	}
	key := parseAnswer(answer)
	if key == "" || key == noneAnswer || !slices.Contains(r.keys, key) {
		return "", fmt.Errorf("llmremote: answer %q is not a known animal: %w", answer, resolve.ErrUnavailable)
	}
	return key, nil
}

func (r *Resolver) systemPrompt() string {
	return "You map a single spoken word to a farm animal. The word may be the " +
		"animal's name, a sound it makes, or a mis-heard variant of either. " +
		"Reply with exactly one word from this list and nothing else: " +
		strings.Join(r.keys, ", ") + ". If none fits, reply " + noneAnswer + "."
}

// classify separates transport trouble (unreachable) from a backend that
// answered with an error (unavailable).
func classify(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case ctx.Err() != nil,
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return resolve.ErrUnreachable
	default:
		return resolve.ErrUnavailable
	}
}

// parseAnswer extracts the first word of the model's reply, lowercased and
// stripped of punctuation.
func parseAnswer(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

var _ resolve.RemoteResolver = (*Resolver)(nil)
