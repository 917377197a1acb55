package preview

import (
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/care/painter/internal/types"
)

func marker() types.Marker {
	red := types.NewMarkerColor(types.Color{R: 255})
	blue := types.NewMarkerColor(types.Color{B: 255})
	return types.Marker{
		Points: []types.MarkerPoint{
			{X: 0, Y: 0},
			{X: 0.02, Y: 0.01},
		},
		Colors: []types.MarkerColor{red, blue},
	}
}

func TestRenderGrid(t *testing.T) {
	img, err := Render(marker(), Options{Resolution: 0.01, Scale: 4})
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	// 3 columns x 2 rows of cells, 4 pixels each
	if b := img.Bounds(); b.Dx() != 12 || b.Dy() != 8 {
		t.Fatalf("bounds = %v, want 12x8", b)
	}

	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"origin bottom-left", 1, 6, color.RGBA{R: 255, A: 255}},
		{"second point top-right", 10, 2, color.RGBA{B: 255, A: 255}},
		{"unpainted cell", 5, 5, color.RGBA{R: 255, G: 255, B: 255, A: 255}},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("%s: pixel (%d,%d) = %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := Render(types.Marker{}, Options{Resolution: 0.01}); !errors.Is(err, ErrNoPoints) {
		t.Errorf("Render() of empty marker error = %v, want ErrNoPoints", err)
	}
	if _, err := Render(marker(), Options{}); err == nil {
		t.Error("Render() with zero resolution succeeded")
	}
	huge := types.Marker{Points: []types.MarkerPoint{{X: 0}, {X: 100}}}
	if _, err := Render(huge, Options{Resolution: 0.001}); err == nil {
		t.Error("Render() of oversized raster succeeded")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "preview.png")
	if err := WriteFile(path, marker(), Options{Resolution: 0.01, Scale: 2}); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode() failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 4 {
		t.Errorf("bounds = %v, want 6x4", b)
	}
}
