package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mode selects what a painting session does
type Mode int

const (
	ModePaletteTest Mode = iota + 1 // dip into every well
	ModeCanvasTest                  // one smear at the canvas origin
	ModePreview                     // publish the target image without painting
	ModePaint                       // full paint run
)

// String returns the mode name used in flags and logs
func (m Mode) String() string {
	switch m {
	case ModePaletteTest:
		return "palette"
	case ModeCanvasTest:
		return "canvas"
	case ModePreview:
		return "preview"
	case ModePaint:
		return "paint"
	default:
		return "unknown"
	}
}

// ParseMode accepts either the mode name or its menu number (1-4)
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n >= int(ModePaletteTest) && n <= int(ModePaint) {
			return Mode(n), nil
		}
		return 0, fmt.Errorf("mode %d out of range (1-4)", n)
	}
	for m := ModePaletteTest; m <= ModePaint; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q (palette, canvas, preview, paint)", s)
}

// ProgressEvent is the wake message the sequencer sends after each pixel.
// Count is the new value of the progress cursor; Skipped marks a pixel
// that advanced the cursor without being painted.
type ProgressEvent struct {
	Count   int
	Skipped bool
}

// MarkerPoint is one renderable sphere of the progress marker
type MarkerPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// MarkerColor is an RGBA color with channels in [0, 1]
type MarkerColor struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// NewMarkerColor converts an 8-bit color to an opaque marker color
func NewMarkerColor(c Color) MarkerColor {
	return MarkerColor{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
		A: 1,
	}
}

// Marker is a sphere list in a fixed frame: the renderable point set
// mirrored from the painting progress.
type Marker struct {
	FrameID   string        `json:"frame_id"`
	Namespace string        `json:"ns"`
	ID        int           `json:"id"`
	Stamp     time.Time     `json:"stamp"`
	Scale     float64       `json:"scale"`
	Lifetime  time.Duration `json:"lifetime"`
	Seq       uint64        `json:"seq"`
	Points    []MarkerPoint `json:"points"`
	Colors    []MarkerColor `json:"colors"`
}

// Len returns the number of points in the marker
func (m Marker) Len() int {
	return len(m.Points)
}
