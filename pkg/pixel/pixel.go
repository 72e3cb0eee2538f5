// Package pixel defines the colour and grid types shared by the image cache,
// the sprite loader, and the display content builder.
package pixel

import "fmt"

// RGB is a single 8-bit-per-channel colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Common colours used by the display layer.
var (
	White = RGB{255, 255, 255}
	Black = RGB{0, 0, 0}
	Gray  = RGB{128, 128, 128}
	Dark  = RGB{32, 32, 32}
)

// Grid is a row-major image: Grid[y][x]. All rows have the same length.
type Grid [][]RGB

// NewGrid returns a black grid of the given dimensions.
func NewGrid(width, height int) Grid {
	g := make(Grid, height)
	for y := range g {
		g[y] = make([]RGB, width)
	}
	return g
}

// Width returns the number of columns, or 0 for an empty grid.
func (g Grid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Height returns the number of rows.
func (g Grid) Height() int { return len(g) }

// Validate reports an error if g is not exactly width×height or has ragged rows.
func (g Grid) Validate(width, height int) error {
	if len(g) != height {
		return fmt.Errorf("pixel: grid has %d rows, want %d", len(g), height)
	}
	for y, row := range g {
		if len(row) != width {
			return fmt.Errorf("pixel: row %d has %d columns, want %d", y, len(row), width)
		}
	}
	return nil
}
