package palette

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/care/painter/internal/types"
)

var (
	red   = types.Color{R: 255}
	green = types.Color{G: 255}
	blue  = types.Color{B: 255}
	white = types.Color{R: 255, G: 255, B: 255}
)

func wells(colors ...types.Color) []types.PaletteEntry {
	entries := make([]types.PaletteEntry, len(colors))
	for i, c := range colors {
		entries[i] = types.PaletteEntry{Color: c, Pose: types.At(float64(i)*0.05, 0, 0)}
	}
	return entries
}

func TestMatchStickyCursor(t *testing.T) {
	m := NewMatcher(wells(red, green, blue))

	steps := []struct {
		color      types.Color
		want       int
		wantCursor int
	}{
		{red, 0, 0},
		{red, 0, 0},
		{blue, 2, 2},
		{blue, 2, 2},
		{green, 1, 1}, // wraps from 2 through 0 to 1
		{red, 0, 0},
	}

	for i, s := range steps {
		got, err := m.Match(s.color)
		if err != nil {
			t.Fatalf("step %d: Match(%s) failed: %v", i, s.color, err)
		}
		if got != s.want {
			t.Errorf("step %d: Match(%s) = %d, want %d", i, s.color, got, s.want)
		}
		if m.Cursor() != s.wantCursor {
			t.Errorf("step %d: Cursor() = %d, want %d", i, m.Cursor(), s.wantCursor)
		}
	}
}

// TestMatchFirstEntryWins validates duplicate colors resolve to the first
// well at or after the cursor.
func TestMatchFirstEntryWins(t *testing.T) {
	m := NewMatcher(wells(red, green, red))

	if got, _ := m.Match(red); got != 0 {
		t.Errorf("Match(red) = %d, want 0", got)
	}
	if got, _ := m.Match(green); got != 1 {
		t.Errorf("Match(green) = %d, want 1", got)
	}
	// Sticky scan starts at 1 and finds the second red well first
	if got, _ := m.Match(red); got != 2 {
		t.Errorf("Match(red) = %d, want 2", got)
	}
}

// TestMatchAbsentColor covers the absent-color scenario: one full wrap, then
// a defined not-found outcome with the cursor reset.
func TestMatchAbsentColor(t *testing.T) {
	m := NewMatcher(wells(red, green, blue))
	if _, err := m.Match(blue); err != nil {
		t.Fatal(err)
	}

	got, err := m.Match(white)
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Match(white) error = %v, want ErrNoMatch", err)
	}
	if got != -1 {
		t.Errorf("Match(white) = %d, want -1", got)
	}
	if m.Cursor() != 0 {
		t.Errorf("Cursor() = %d after miss, want 0", m.Cursor())
	}
}

func TestMatchEmptyPalette(t *testing.T) {
	m := NewMatcher(nil)
	if _, err := m.Match(red); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Match() on empty palette error = %v, want ErrNoMatch", err)
	}
	if i, _ := m.Nearest(red); i != -1 {
		t.Errorf("Nearest() on empty palette = %d, want -1", i)
	}
}

// TestMatchFromEveryCursor is the property test: for random palettes and any
// color present in them, Match returns an index holding that color no matter
// where the sticky cursor starts.
func TestMatchFromEveryCursor(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(8)
		colors := make([]types.Color, n)
		for i := range colors {
			// Small channel range forces duplicates
			colors[i] = types.Color{R: uint8(rng.Intn(3)), G: uint8(rng.Intn(2)), B: 7}
		}
		entries := wells(colors...)

		for start := 0; start < n; start++ {
			m := NewMatcher(entries)
			if _, err := m.Match(colors[start]); err != nil {
				t.Fatalf("trial %d: priming failed: %v", trial, err)
			}

			target := colors[rng.Intn(n)]
			got, err := m.Match(target)
			if err != nil {
				t.Fatalf("trial %d start %d: Match(%s) failed: %v", trial, start, target, err)
			}
			if got < 0 || got >= n || !entries[got].Color.Equal(target) {
				t.Fatalf("trial %d start %d: Match(%s) = %d holding %s",
					trial, start, target, got, entries[got].Color)
			}

			// Idempotent: matching again returns the same well
			again, _ := m.Match(target)
			if again != got {
				t.Fatalf("trial %d: repeated Match = %d, want %d", trial, again, got)
			}
		}
	}
}

func TestNearest(t *testing.T) {
	m := NewMatcher(wells(red, green, blue))

	got, dist := m.Nearest(types.Color{R: 250, G: 10, B: 5})
	if got != 0 {
		t.Errorf("Nearest() = %d, want 0 (red)", got)
	}
	if dist <= 0 {
		t.Errorf("distance = %v, want > 0 for a near miss", dist)
	}

	// Nearest is diagnostic: an exact Match still fails
	if _, err := m.Match(types.Color{R: 250, G: 10, B: 5}); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Match() of near miss error = %v, want ErrNoMatch", err)
	}
}

func TestHex(t *testing.T) {
	if got := Hex(types.Color{R: 255, G: 128, B: 0}); got != "#ff8000" {
		t.Errorf("Hex() = %q, want #ff8000", got)
	}
}
