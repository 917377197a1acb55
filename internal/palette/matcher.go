// Package palette resolves target pixel colors to paint wells.
//
// Matching is exact: a pixel is painted from a well only when all three
// channels are equal. Near misses (camera noise) are not absorbed; Nearest
// exists to explain a failed match in logs, never to choose a well.
package palette

import (
	"errors"
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/care/painter/internal/types"
)

// ErrNoMatch is returned when no well carries the requested color
var ErrNoMatch = errors.New("palette: no well matches color")

// Matcher finds wells with a sticky cursor. Runs of equal pixels usually
// reuse the same well, so scanning starts where the last match was found.
// Not safe for concurrent use; it belongs to a single sequencer.
type Matcher struct {
	entries []types.PaletteEntry
	cursor  int
}

// NewMatcher creates a matcher over an immutable palette
func NewMatcher(entries []types.PaletteEntry) *Matcher {
	return &Matcher{entries: entries}
}

// Len returns the palette size
func (m *Matcher) Len() int {
	return len(m.entries)
}

// Entry returns the well at index i
func (m *Matcher) Entry(i int) types.PaletteEntry {
	return m.entries[i]
}

// Cursor returns the index the next scan starts from
func (m *Matcher) Cursor() int {
	return m.cursor
}

// Match returns the index of the first well equal to c, scanning from the
// cursor to the end and then wrapping once from 0. A failed scan resets the
// cursor and returns ErrNoMatch; it never loops.
func (m *Matcher) Match(c types.Color) (int, error) {
	n := len(m.entries)
	for k := 0; k < n; k++ {
		i := (m.cursor + k) % n
		if m.entries[i].Color.Equal(c) {
			m.cursor = i
			return i, nil
		}
	}

	m.cursor = 0
	return -1, fmt.Errorf("%w %s", ErrNoMatch, c)
}

// Nearest returns the well closest to c in CIEDE2000 distance, with the
// distance. Diagnostic only. Returns -1 for an empty palette.
func (m *Matcher) Nearest(c types.Color) (int, float64) {
	target := toColorful(c)
	best, bestDist := -1, 0.0
	for i, e := range m.entries {
		d := target.DistanceCIEDE2000(toColorful(e.Color))
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// Hex formats c as #rrggbb
func Hex(c types.Color) string {
	return toColorful(c).Hex()
}

func toColorful(c types.Color) colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}
}
