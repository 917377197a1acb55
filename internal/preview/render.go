// Package preview renders a marker point set into a PNG snapshot.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/care/painter/internal/types"
)

// ErrNoPoints is returned when there is nothing to render
var ErrNoPoints = errors.New("preview: marker has no points")

// maxCells bounds the raster before scaling
const maxCells = 4096

// Options controls rasterization
type Options struct {
	Resolution float64 // meters per cell
	Scale      int     // output pixels per cell
}

// Render rasterizes the marker's canvas-local x/y points, one cell per grid
// position, then scales the raster with nearest-neighbour sampling. +y is up.
func Render(m types.Marker, opts Options) (*image.RGBA, error) {
	if m.Len() == 0 {
		return nil, ErrNoPoints
	}
	if opts.Resolution <= 0 {
		return nil, fmt.Errorf("preview: resolution must be > 0, got %v", opts.Resolution)
	}
	if opts.Scale < 1 {
		opts.Scale = 1
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range m.Points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	cols := int(math.Round((maxX-minX)/opts.Resolution)) + 1
	rows := int(math.Round((maxY-minY)/opts.Resolution)) + 1
	if cols > maxCells || rows > maxCells {
		return nil, fmt.Errorf("preview: raster %dx%d exceeds %d cells per side", cols, rows, maxCells)
	}

	src := image.NewRGBA(image.Rect(0, 0, cols, rows))
	draw.Draw(src, src.Bounds(), image.White, image.Point{}, draw.Src)

	for i, p := range m.Points {
		col := int(math.Round((p.X - minX) / opts.Resolution))
		row := rows - 1 - int(math.Round((p.Y-minY)/opts.Resolution))
		src.SetRGBA(col, row, toRGBA(colorAt(m, i)))
	}

	if opts.Scale == 1 {
		return src, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, cols*opts.Scale, rows*opts.Scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// WriteFile renders m and writes it as PNG to path
func WriteFile(path string, m types.Marker, opts Options) error {
	img, err := Render(m, opts)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create preview directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create preview file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}

	b := img.Bounds()
	slog.Info("preview written", "path", path, "points", m.Len(), "width", b.Dx(), "height", b.Dy())
	return nil
}

func colorAt(m types.Marker, i int) types.MarkerColor {
	if i < len(m.Colors) {
		return m.Colors[i]
	}
	return types.MarkerColor{A: 1}
}

func toRGBA(c types.MarkerColor) color.RGBA {
	ch := func(v float64) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return color.RGBA{R: ch(c.R), G: ch(c.G), B: ch(c.B), A: ch(c.A)}
}
