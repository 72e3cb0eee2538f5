package display

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/brainball/internal/imagecache"
	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/pkg/pixel"
)

// ListeningText is shown while idle with nothing cached.
const ListeningText = "Listening..."

// WordResolver maps a word to an animal.
type WordResolver interface {
	Resolve(ctx context.Context, word string) resolve.Result
}

// Input is everything a single Build depends on.
type Input struct {
	// Word is the current recognised word, possibly empty.
	Word string

	// ImagesEnabled selects the sprite view over the text-only view.
	ImagesEnabled bool

	// Status, when not StatusNone, replaces the indicator Build would pick.
	Status Status

	// Result, when non-nil, is used instead of calling the resolver. The
	// app passes the memoised result for a word it already resolved.
	Result *resolve.Result
}

// Builder assembles [Content] values.
type Builder struct {
	resolver WordResolver
	cache    *imagecache.Cache
	fetch    imagecache.FetchFunc
}

// NewBuilder returns a Builder. resolver and fetch may be nil, in which case
// every word takes the "no image" path.
func NewBuilder(resolver WordResolver, cache *imagecache.Cache, fetch imagecache.FetchFunc) *Builder {
	if cache == nil {
		cache = imagecache.New()
	}
	return &Builder{resolver: resolver, cache: cache, fetch: fetch}
}

// Cache returns the image cache the builder reads from.
func (b *Builder) Cache() *imagecache.Cache { return b.cache }

// Build assembles the content for in.
func (b *Builder) Build(ctx context.Context, in Input) Content {
	c := b.build(ctx, in)
	if in.Status != StatusNone {
		c.Status = in.Status
	}
	return c
}

func (b *Builder) build(ctx context.Context, in Input) Content {
	word := strings.TrimSpace(in.Word)

	if word == "" {
		if in.ImagesEnabled {
			if e, ok := b.cache.Current(); ok {
				return imageContent("", e)
			}
		}
		return Content{
			Mode:            ModeVoice,
			TextColor:       pixel.Gray,
			BackgroundColor: pixel.Dark,
			Text:            ListeningText,
		}
	}

	if !in.ImagesEnabled {
		return textContent(strings.ToUpper(word))
	}

	var res resolve.Result
	switch {
	case in.Result != nil:
		res = *in.Result
	case b.resolver != nil:
		res = b.resolver.Resolve(ctx, word)
	}
	if res.Found() && b.fetch != nil {
		if e, ok := b.cache.GetOrRefresh(ctx, res.AnimalKey, b.fetch); ok && e.Key == res.AnimalKey {
			caption := strings.ToUpper(word)
			if res.ErrorNote != "" {
				caption = fmt.Sprintf("%s (%s)", res.ErrorNote, res.AnimalKey)
			}
			return imageContent(caption, e)
		}
	}
	return textContent(word + " (no image)")
}

// Pending is shown while word is being resolved off the render path: the
// last image, if any, captioned with the new word and a thinking indicator.
func (b *Builder) Pending(word string, imagesEnabled bool) Content {
	caption := strings.ToUpper(strings.TrimSpace(word))
	var c Content
	if e, ok := b.cache.Current(); ok && imagesEnabled {
		c = imageContent(caption, e)
	} else {
		c = textContent(caption)
	}
	c.Status = StatusThinking
	return c
}

func imageContent(caption string, e imagecache.Entry) Content {
	return Content{
		Mode:            ModeVoice,
		TextColor:       pixel.White,
		BackgroundColor: pixel.Black,
		Text:            caption,
		Image:           &e,
		Status:          StatusListening,
	}
}

func textContent(text string) Content {
	return Content{
		Mode:            ModeVoice,
		TextColor:       pixel.White,
		BackgroundColor: pixel.Black,
		Text:            text,
	}
}
