package domain

import (
	"errors"
	"testing"

	apperrors "github.com/louisbranch/gridpaint/internal/platform/errors"
)

func TestGridContains(t *testing.T) {
	grid := NewGrid(10, 5)

	cases := []struct {
		name string
		x, y int
		want bool
	}{
		{"origin", 0, 0, true},
		{"max corner", 9, 4, true},
		{"negative x", -1, 0, false},
		{"negative y", 0, -1, false},
		{"x at width", 10, 0, false},
		{"y at height", 0, 5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := grid.Contains(tc.x, tc.y); got != tc.want {
				t.Fatalf("Contains(%d, %d) = %v, want %v", tc.x, tc.y, got, tc.want)
			}
		})
	}
}

func TestNewGridDefaults(t *testing.T) {
	grid := NewGrid(0, -3)
	if grid.Width != DefaultGridWidth || grid.Height != DefaultGridHeight {
		t.Fatalf("grid = %+v, want defaults %dx%d", grid, DefaultGridWidth, DefaultGridHeight)
	}
}

func TestValidatePlacementOutOfBounds(t *testing.T) {
	grid := NewGrid(16, 16)
	_, err := grid.ValidatePlacement(-1, 0, "#FF0000")
	if apperrors.CodeOf(err) != apperrors.CodeCanvasOutOfBounds {
		t.Fatalf("err = %v, want out of bounds code", err)
	}
}

func TestValidatePlacementNormalizesColor(t *testing.T) {
	grid := NewGrid(16, 16)
	color, err := grid.ValidatePlacement(5, 5, "#ff00aa")
	if err != nil {
		t.Fatalf("validate placement: %v", err)
	}
	if color != "#FF00AA" {
		t.Fatalf("color = %q, want %q", color, "#FF00AA")
	}
}

func TestNormalizeColorRejectsMalformedTokens(t *testing.T) {
	for _, color := range []string{"", "FF0000", "#FF000", "#GG0000", "#FF00001", "red"} {
		if _, err := NormalizeColor(color); err == nil {
			t.Fatalf("expected error for color %q", color)
		} else if !errors.Is(err, apperrors.New(apperrors.CodeCanvasInvalidColor, "")) {
			t.Fatalf("color %q err = %v, want invalid color code", color, err)
		}
	}
}

func TestReplenishedClampsToCapacity(t *testing.T) {
	cases := []struct {
		name                    string
		balance, step, capacity int
		want                    int
	}{
		{"normal step", 97, 1, 100, 98},
		{"at capacity", 100, 1, 100, 100},
		{"near capacity", 99, 5, 100, 100},
		{"negative balance clamps", -3, 1, 100, 1},
		{"zero step", 50, 0, 100, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Replenished(tc.balance, tc.step, tc.capacity); got != tc.want {
				t.Fatalf("Replenished(%d, %d, %d) = %d, want %d", tc.balance, tc.step, tc.capacity, got, tc.want)
			}
		})
	}
}
