package pixel

import "testing"

func TestNewGrid_Dimensions(t *testing.T) {
	g := NewGrid(16, 8)
	if g.Width() != 16 || g.Height() != 8 {
		t.Fatalf("grid = %dx%d, want 16x8", g.Width(), g.Height())
	}
	if g[7][15] != Black {
		t.Errorf("new grid pixel = %v, want black", g[7][15])
	}
}

func TestGrid_Validate(t *testing.T) {
	tests := []struct {
		name    string
		grid    Grid
		wantErr bool
	}{
		{"exact", NewGrid(4, 4), false},
		{"too few rows", NewGrid(4, 3), true},
		{"too narrow", NewGrid(3, 4), true},
		{"ragged", Grid{make([]RGB, 4), make([]RGB, 3), make([]RGB, 4), make([]RGB, 4)}, true},
		{"nil", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.grid.Validate(4, 4)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestGrid_WidthEmpty(t *testing.T) {
	var g Grid
	if g.Width() != 0 {
		t.Errorf("Width() = %d, want 0", g.Width())
	}
}
