package types

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Color is an 8-bit RGB sample
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Equal reports exact channel-wise equality
func (c Color) Equal(o Color) bool {
	return c.R == o.R && c.G == o.G && c.B == o.B
}

// String returns the color as [r, g, b]
func (c Color) String() string {
	return fmt.Sprintf("[%d, %d, %d]", c.R, c.G, c.B)
}

// Pose is a position in a named reference frame.
// Orientation is not modelled: every move uses the identity orientation.
type Pose struct {
	Frame    string `json:"frame,omitempty"`
	Position r3.Vec `json:"position"`
}

// At builds a pose in the default frame
func At(x, y, z float64) Pose {
	return Pose{Position: r3.Vec{X: x, Y: y, Z: z}}
}

// Offset returns the pose translated by origin, keeping origin's frame
func (p Pose) Offset(origin Pose) Pose {
	return Pose{
		Frame:    origin.Frame,
		Position: r3.Add(p.Position, origin.Position),
	}
}

// Lifted returns a copy of the pose with z replaced
func (p Pose) Lifted(z float64) Pose {
	p.Position.Z = z
	return p
}

// String returns the position as [x, y, z]
func (p Pose) String() string {
	return fmt.Sprintf("[%.4f, %.4f, %.4f]", p.Position.X, p.Position.Y, p.Position.Z)
}

// PaletteEntry is one paint well: its sampled color and where it sits
type PaletteEntry struct {
	Color Color `json:"color"`
	Pose  Pose  `json:"pose"`
}

// PixelEntry is one target pixel with a canvas-local pose
type PixelEntry struct {
	Color Color `json:"color"`
	Pose  Pose  `json:"pose"`
}

// Canvas describes where the canvas lies in the robot base frame
type Canvas struct {
	Origin Pose    `json:"origin"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the canvas was actually detected
func (c Canvas) Valid() bool {
	return c.Width != 0
}
