// Package sprite loads animal pixel art from a directory tree laid out as
//
//	<root>/<animal key>/<variant>.png
//
// Each Fetch picks one variant at random, composites it over black and scales
// it to the display grid with nearest-neighbour sampling so pixel art stays
// crisp.
package sprite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"math/rand/v2"
	"path"
	"slices"
	"strings"

	"golang.org/x/image/draw"

	"github.com/MrWong99/brainball/pkg/pixel"
)

// ErrNoSprite is returned when an animal has no PNG variants.
var ErrNoSprite = errors.New("sprite: no sprite for animal")

// DefaultSize is the edge length of fetched grids.
const DefaultSize = 16

// Loader reads sprites from an [fs.FS].
type Loader struct {
	fsys          fs.FS
	width, height int
	randIntN      func(n int) int
}

// Option configures a [Loader].
type Option func(*Loader)

// WithSize sets the output grid dimensions. Defaults to 16×16.
func WithSize(width, height int) Option {
	return func(l *Loader) {
		if width > 0 && height > 0 {
			l.width, l.height = width, height
		}
	}
}

// WithRandIntN replaces the variant picker (for tests).
func WithRandIntN(f func(n int) int) Option {
	return func(l *Loader) {
		if f != nil {
			l.randIntN = f
		}
	}
}

// New returns a Loader rooted at fsys. Use os.DirFS for a directory on disk.
func New(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{
		fsys:     fsys,
		width:    DefaultSize,
		height:   DefaultSize,
		randIntN: rand.IntN,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Keys returns the sorted animal keys that have at least one variant.
func (l *Loader) Keys() ([]string, error) {
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("sprite: list root: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if v, err := l.Variants(e.Name()); err == nil && len(v) > 0 {
			keys = append(keys, e.Name())
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Variants returns the sorted PNG paths available for key.
func (l *Loader) Variants(key string) ([]string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || !fs.ValidPath(key) {
		return nil, fmt.Errorf("sprite: invalid key %q: %w", key, ErrNoSprite)
	}
	matches, err := fs.Glob(l.fsys, path.Join(key, "*.png"))
	if err != nil {
		return nil, fmt.Errorf("sprite: glob %q: %w", key, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("sprite: %q: %w", key, ErrNoSprite)
	}
	slices.Sort(matches)
	return matches, nil
}

// Fetch loads a random variant for key as a grid. Its signature matches
// imagecache.FetchFunc.
func (l *Loader) Fetch(_ context.Context, key string) (pixel.Grid, error) {
	variants, err := l.Variants(key)
	if err != nil {
		return nil, err
	}
	return l.Load(variants[l.randIntN(len(variants))])
}

// Load decodes the PNG at name and converts it to a grid.
func (l *Loader) Load(name string) (pixel.Grid, error) {
	f, err := l.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("sprite: open %q: %w", name, err)
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("sprite: decode %q: %w", name, err)
	}
	return ToGrid(src, l.width, l.height), nil
}

// ToGrid composites src over black and scales it to width×height with
// nearest-neighbour sampling.
func ToGrid(src image.Image, width, height int) pixel.Grid {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	g := pixel.NewGrid(width, height)
	for y := range height {
		for x := range width {
			c := dst.RGBAAt(x, y)
			g[y][x] = pixel.RGB{R: c.R, G: c.G, B: c.B}
		}
	}
	return g
}
