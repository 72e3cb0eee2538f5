package app

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/brainball/internal/display"
	"github.com/MrWong99/brainball/internal/resolve"
)

// presenter turns the recognised word into display content. Resolution runs
// on a single background goroutine and is never awaited by a render tick;
// while a word is being resolved the pending view is shown. Only the newest
// requested word is kept in the queue.
type presenter struct {
	resolver display.WordResolver
	builder  *display.Builder
	requests chan string

	mu       sync.Mutex
	word     string // word the memoised result belongs to
	result   resolve.Result
	resolved bool
	pending  string // word handed to the worker and not yet resolved
}

func newPresenter(r display.WordResolver, b *display.Builder) *presenter {
	return &presenter{resolver: r, builder: b, requests: make(chan string, 1)}
}

// content returns what to show for word. It never blocks on the resolver.
func (p *presenter) content(ctx context.Context, word string, images bool) display.Content {
	word = strings.TrimSpace(word)
	if word == "" {
		return p.builder.Build(ctx, display.Input{ImagesEnabled: images})
	}
	if !images {
		return p.builder.Build(ctx, display.Input{Word: word})
	}

	p.mu.Lock()
	if p.resolved && p.word == word {
		res := p.result
		p.mu.Unlock()
		return p.builder.Build(ctx, display.Input{Word: word, ImagesEnabled: true, Result: &res})
	}
	send := p.pending != word
	if send {
		p.pending = word
	}
	p.mu.Unlock()

	if send {
		p.request(word)
	}
	return p.builder.Pending(word, true)
}

// request queues word, replacing any queued older word. content is the only
// sender, so the second select always finds room.
func (p *presenter) request(word string) {
	select {
	case <-p.requests:
	default:
	}
	select {
	case p.requests <- word:
	default:
	}
}

// run resolves queued words until ctx is done.
func (p *presenter) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case word := <-p.requests:
			res := p.resolver.Resolve(ctx, word)
			if ctx.Err() != nil {
				return nil
			}
			p.mu.Lock()
			p.word, p.result, p.resolved = word, res, true
			if p.pending == word {
				p.pending = ""
			}
			p.mu.Unlock()
		}
	}
}

// lastResult returns the memoised result if it belongs to word.
func (p *presenter) lastResult(word string) (resolve.Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.resolved || p.word != strings.TrimSpace(word) {
		return resolve.Result{}, false
	}
	return p.result, true
}

// invalidate drops the memoised result so the current word is resolved
// again.
func (p *presenter) invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = false
	p.word = ""
	p.pending = ""
}
