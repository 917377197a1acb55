package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestPoseOffset(t *testing.T) {
	origin := Pose{Frame: "base_link", Position: r3.Vec{X: 0.5, Y: -0.1, Z: 0.02}}
	local := At(0.01, 0.02, 0)

	got := local.Offset(origin)
	want := Pose{Frame: "base_link", Position: r3.Vec{X: 0.51, Y: -0.08, Z: 0.02}}

	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b float64) bool {
		d := a - b
		return d < 1e-12 && d > -1e-12
	})); diff != "" {
		t.Errorf("Offset() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "1", want: ModePaletteTest},
		{in: "2", want: ModeCanvasTest},
		{in: " preview ", want: ModePreview},
		{in: "PAINT", want: ModePaint},
		{in: "0", wantErr: true},
		{in: "5", wantErr: true},
		{in: "draw", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMarkerColor(t *testing.T) {
	got := NewMarkerColor(Color{R: 255, G: 0, B: 51})
	want := MarkerColor{R: 1, G: 0, B: 0.2, A: 1}
	if got != want {
		t.Errorf("NewMarkerColor() = %+v, want %+v", got, want)
	}
}
