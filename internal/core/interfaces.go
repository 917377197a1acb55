package core

import (
	"context"

	"github.com/care/painter/internal/types"
)

// VisionService answers setup queries. Await methods retry per their policy.
type VisionService interface {
	AwaitPalette(ctx context.Context, mode int32) ([]types.PaletteEntry, error)
	AwaitCanvas(ctx context.Context, mode int32) (types.Canvas, error)
	StartImagePreprocessing(ctx context.Context) error
	AwaitImagePixels(ctx context.Context, mode int32) ([]types.PixelEntry, error)
}

// MotionService moves the arm. Every call blocks until the move ends.
type MotionService interface {
	MoveTo(ctx context.Context, pose types.Pose) error
	MoveToNamed(ctx context.Context, target string) error
}

// Prompter asks the operator before a session starts
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
	SelectMode(ctx context.Context) (types.Mode, error)
}
