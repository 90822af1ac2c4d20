package domain

import (
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/gridpaint/internal/platform/errors"
)

// Default grid dimensions when no configuration overrides them.
const (
	DefaultGridWidth  = 256
	DefaultGridHeight = 256
)

// Cell is one addressable grid coordinate with its current color and the
// participant who last set it. Upsert semantics, no history.
type Cell struct {
	X         int
	Y         int
	Color     string
	OwnerID   string
	UpdatedAt time.Time
}

// Grid describes the fixed canvas bounds.
type Grid struct {
	Width  int
	Height int
}

// NewGrid builds a grid, falling back to defaults for non-positive sizes.
func NewGrid(width, height int) Grid {
	if width <= 0 {
		width = DefaultGridWidth
	}
	if height <= 0 {
		height = DefaultGridHeight
	}
	return Grid{Width: width, Height: height}
}

// Contains reports whether the coordinate lies inside the grid bounds.
func (g Grid) Contains(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// ValidatePlacement checks coordinate bounds and the color token for a
// proposed placement before any store or ledger interaction.
func (g Grid) ValidatePlacement(x, y int, color string) (string, error) {
	if !g.Contains(x, y) {
		return "", apperrors.WithMetadata(
			apperrors.CodeCanvasOutOfBounds,
			"placement coordinate is out of bounds",
			map[string]string{
				"X": strconv.Itoa(x),
				"Y": strconv.Itoa(y),
			},
		)
	}
	normalized, err := NormalizeColor(color)
	if err != nil {
		return "", err
	}
	return normalized, nil
}

// NormalizeColor validates a #RRGGBB color token and upper-cases its digits
// so equal colors compare equal regardless of client casing.
func NormalizeColor(color string) (string, error) {
	color = strings.TrimSpace(color)
	if len(color) != 7 || color[0] != '#' {
		return "", apperrors.New(apperrors.CodeCanvasInvalidColor, "color must be a #RRGGBB token")
	}
	for _, r := range color[1:] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return "", apperrors.New(apperrors.CodeCanvasInvalidColor, "color must be a #RRGGBB token")
		}
	}
	return strings.ToUpper(color), nil
}
