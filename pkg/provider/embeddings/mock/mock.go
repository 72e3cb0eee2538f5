// Package mock provides a test double for the embeddings.Provider interface.
//
// Vectors can be scripted per input text via Vectors; texts without an entry
// fall back to EmbedResult. This lets matcher tests give each animal label
// and each spoken word its own direction in vector space.
//
// Example:
//
//	p := &mock.Provider{
//	    Vectors:      map[string][]float32{"cow": {1, 0}, "moo": {0.9, 0.1}},
//	    ModelIDValue: "test-embed-v1",
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/brainball/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to the vector returned for it.
	Vectors map[string][]float32

	// EmbedResult is returned for texts missing from Vectors.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned by Embed.
	EmbedErr error

	// EmbedBatchErr, if non-nil, is returned by EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records the text of every Embed call in order.
	EmbedCalls []string

	// EmbedBatchCalls records a copy of the texts of every EmbedBatch call.
	EmbedBatchCalls [][]string
}

func (p *Provider) lookup(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return v
	}
	return p.EmbedResult
}

// Embed records the call and returns the scripted vector or EmbedErr.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.lookup(text), nil
}

// EmbedBatch records the call and returns one scripted vector per text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, cp)
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.lookup(t)
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// EmbedCallCount returns the number of Embed calls so far.
func (p *Provider) EmbedCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls)
}

// BatchCallCount returns the number of EmbedBatch calls so far.
func (p *Provider) BatchCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedBatchCalls)
}

var _ embeddings.Provider = (*Provider)(nil)
