// Package brush turns paint operations into arm move sequences.
package brush

import (
	"context"
	"fmt"

	"github.com/care/painter/internal/config"
	"github.com/care/painter/internal/types"
)

// Mover executes a single blocking move
type Mover interface {
	MoveTo(ctx context.Context, pose types.Pose) error
}

// Brush performs dips and smears with a fixed geometry
type Brush struct {
	mover Mover
	geo   config.Geometry
}

// New creates a brush driving mover
func New(mover Mover, geo config.Geometry) *Brush {
	return &Brush{mover: mover, geo: geo}
}

// DipPath returns the poses of a dip into the well at well: hover above the
// bottle, descend below the paint surface by one brush height, hover again.
func (b *Brush) DipPath(well types.Pose) []types.Pose {
	z := well.Position.Z
	above := well.Lifted(z + b.geo.BottleHeight + b.geo.HeightOffset())
	return []types.Pose{
		above,
		well.Lifted(z + b.geo.PaintHeight - b.geo.BrushHeight),
		above,
	}
}

// SmearPath returns the poses of one stroke at target: hover, touch the
// surface, drag one brush width along -x, lift clear of the bottles.
func (b *Brush) SmearPath(target types.Pose) []types.Pose {
	z := target.Position.Z
	drag := target
	drag.Position.X -= b.geo.BrushWidth
	return []types.Pose{
		target.Lifted(z + b.geo.HeightOffset()),
		target,
		drag,
		drag.Lifted(z + b.geo.BottleHeight + b.geo.HeightOffset()),
	}
}

// Dip loads the brush from the well at well
func (b *Brush) Dip(ctx context.Context, well types.Pose) error {
	if err := b.follow(ctx, b.DipPath(well)); err != nil {
		return fmt.Errorf("dip at %s: %w", well, err)
	}
	return nil
}

// Smear paints one stroke at target
func (b *Brush) Smear(ctx context.Context, target types.Pose) error {
	if err := b.follow(ctx, b.SmearPath(target)); err != nil {
		return fmt.Errorf("smear at %s: %w", target, err)
	}
	return nil
}

func (b *Brush) follow(ctx context.Context, path []types.Pose) error {
	for i, pose := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.mover.MoveTo(ctx, pose); err != nil {
			return fmt.Errorf("waypoint %d/%d: %w", i+1, len(path), err)
		}
	}
	return nil
}
