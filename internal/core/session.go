package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/care/painter/internal/palette"
	"github.com/care/painter/internal/preview"
	"github.com/care/painter/internal/progress"
	"github.com/care/painter/internal/sequencer"
	"github.com/care/painter/internal/types"
	"github.com/care/painter/internal/vision"
)

// previewPeriod is the publish tick of image preview mode
const previewPeriod = time.Second

// runSession homes the arm, asks for confirmation and a mode, then runs
// the selected mode to completion.
func (p *Painter) runSession(ctx context.Context, mode types.Mode) error {
	p.setPhase(PhaseHoming)
	if err := p.motion.MoveToNamed(ctx, p.cfg.Services.HomeTarget); err != nil {
		return p.fail(fmt.Errorf("move to %q: %w", p.cfg.Services.HomeTarget, err))
	}

	if p.Prompter != nil {
		ok, err := p.Prompter.Confirm(ctx, "Start?")
		if err != nil {
			return p.fail(fmt.Errorf("confirm start: %w", err))
		}
		if !ok {
			slog.Info("session declined by operator")
			p.setPhase(PhaseDeclined)
			return nil
		}
	}

	if mode == 0 {
		if p.Prompter == nil {
			return p.fail(fmt.Errorf("no session mode given and no prompter"))
		}
		selected, err := p.Prompter.SelectMode(ctx)
		if err != nil {
			return p.fail(fmt.Errorf("select mode: %w", err))
		}
		mode = selected
	}

	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	slog.Info("session starting", "mode", mode.String())

	var err error
	switch mode {
	case types.ModePaletteTest:
		err = p.paletteTest(ctx)
	case types.ModeCanvasTest:
		err = p.canvasTest(ctx)
	case types.ModePreview:
		err = p.previewImage(ctx)
	case types.ModePaint:
		err = p.paint(ctx)
	default:
		err = fmt.Errorf("unknown session mode %d", int(mode))
	}

	if err != nil {
		if ctx.Err() != nil {
			slog.Info("session interrupted", "mode", mode.String(), "phase", p.Phase())
			return nil
		}
		return p.fail(err)
	}
	return nil
}

// paletteTest dips the brush into every well in service order
func (p *Painter) paletteTest(ctx context.Context) error {
	p.setPhase(PhaseSetup)
	entries, err := p.vision.AwaitPalette(ctx, vision.ModeMeasure)
	if err != nil {
		return fmt.Errorf("palette: %w", err)
	}

	p.setPhase(PhaseTesting)
	for i, e := range entries {
		slog.Info("testing well",
			"well", i,
			"color", e.Color.String(),
			"pose", e.Pose.String(),
		)
		if err := p.brush.Dip(ctx, e.Pose); err != nil {
			return fmt.Errorf("well %d: %w", i, err)
		}
	}

	p.setPhase(PhaseDone)
	slog.Info("palette test finished", "wells", len(entries))
	return nil
}

// canvasTest performs one smear at the canvas origin
func (p *Painter) canvasTest(ctx context.Context) error {
	p.setPhase(PhaseSetup)
	canvas, err := p.vision.AwaitCanvas(ctx, vision.ModeMeasure)
	if err != nil {
		return fmt.Errorf("canvas: %w", err)
	}

	p.setPhase(PhaseTesting)
	slog.Info("testing canvas",
		"origin", canvas.Origin.String(),
		"width", canvas.Width,
		"height", canvas.Height,
	)
	if err := p.brush.Smear(ctx, canvas.Origin); err != nil {
		return fmt.Errorf("canvas smear: %w", err)
	}

	p.setPhase(PhaseDone)
	return nil
}

// previewImage publishes the whole target image until ctx is cancelled
func (p *Painter) previewImage(ctx context.Context) error {
	p.setPhase(PhaseSetup)
	if err := p.vision.StartImagePreprocessing(ctx); err != nil {
		return fmt.Errorf("start image preprocessing: %w", err)
	}
	pixels, err := p.vision.AwaitImagePixels(ctx, vision.ModeCached)
	if err != nil {
		return fmt.Errorf("image pixels: %w", err)
	}
	canvas, err := p.vision.AwaitCanvas(ctx, vision.ModeCached)
	if err != nil {
		return fmt.Errorf("canvas: %w", err)
	}
	slog.Info("image ready for preview",
		"pixels", len(pixels),
		"canvas_width", canvas.Width,
	)

	vis := progress.New(p.visualizerConfig(previewPeriod), p.markers, pixels)
	p.mu.Lock()
	p.visualizer = vis
	p.mu.Unlock()

	p.writePreview(vis.Complete())

	p.setPhase(PhasePreviewing)
	return vis.Static(ctx)
}

// paint runs the full stroke sequence with the visualizer alongside
func (p *Painter) paint(ctx context.Context) error {
	p.setPhase(PhaseSetup)
	entries, err := p.vision.AwaitPalette(ctx, vision.ModeCached)
	if err != nil {
		return fmt.Errorf("palette: %w", err)
	}
	canvas, err := p.vision.AwaitCanvas(ctx, vision.ModeCached)
	if err != nil {
		return fmt.Errorf("canvas: %w", err)
	}
	pixels, err := p.vision.AwaitImagePixels(ctx, vision.ModeCached)
	if err != nil {
		return fmt.Errorf("image pixels: %w", err)
	}

	painting := p.cfg.Painting
	seq := sequencer.New(sequencer.Config{
		AliveTime:      painting.AliveTime,
		BrushCoeff:     painting.BrushCoeff,
		MatchFailure:   painting.MatchFailure,
		StrokeInterval: painting.StrokeInterval(),
	}, p.brush)
	if err := seq.Begin(entries, canvas, pixels); err != nil {
		return err
	}

	vis := progress.New(p.visualizerConfig(p.cfg.Visualizer.Period()), p.markers, pixels)
	p.mu.Lock()
	p.sequencer = seq
	p.visualizer = vis
	p.mu.Unlock()

	visDone := make(chan error, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		visDone <- vis.Run(ctx, seq.Progress())
	}()

	p.setPhase(PhasePainting)
	err = p.strokeLoop(ctx, seq)

	seq.Close()
	if visErr := <-visDone; visErr != nil && ctx.Err() == nil {
		slog.Error("progress visualizer failed", "error", visErr)
	}
	if err != nil {
		return err
	}

	p.writePreview(vis.Marker())
	p.setPhase(PhaseDone)

	stats := seq.Stats()
	slog.Info("paint run finished",
		"painted", stats.Painted,
		"strokes", stats.Strokes,
		"reloads", stats.Reloads,
		"skipped", stats.Skipped,
		"desyncs", vis.Stats().Desyncs,
	)
	return nil
}

// strokeLoop runs the sequencer, parking the session after a failed stroke
// until resume_painting or cancellation.
func (p *Painter) strokeLoop(ctx context.Context, seq *sequencer.Sequencer) error {
	for {
		err := seq.Run(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var strokeErr *sequencer.StrokeError
		if !errors.As(err, &strokeErr) || errors.Is(err, palette.ErrNoMatch) {
			return err
		}

		p.stall(strokeErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.resumeCh:
		}

		slog.Info("retrying stalled stroke", "pixel", strokeErr.Index)
		p.mu.Lock()
		p.lastError = ""
		p.stalledAt = 0
		p.mu.Unlock()
		p.setPhase(PhasePainting)
	}
}

// stall records a failed stroke and drops any resume sent before it
func (p *Painter) stall(err *sequencer.StrokeError) {
	select {
	case <-p.resumeCh:
	default:
	}

	p.mu.Lock()
	p.lastError = err.Error()
	p.stalledAt = err.Index
	p.mu.Unlock()
	p.setPhase(PhaseStalled)

	slog.Error("stroke failed, painting stalled",
		"pixel", err.Index,
		"error", err.Err,
		"hint", "send resume_painting to retry",
	)
}

// fail records err as the session outcome
func (p *Painter) fail(err error) error {
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()
	p.setPhase(PhaseFailed)
	slog.Error("session failed", "error", err)
	return err
}

func (p *Painter) visualizerConfig(period time.Duration) progress.Config {
	v := p.cfg.Visualizer
	return progress.Config{
		Period:       period,
		FrameID:      v.FrameID,
		Namespace:    v.Namespace,
		Scale:        v.Scale,
		Lifetime:     v.Lifetime(),
		PollInterval: v.PollInterval(),
	}
}

// writePreview renders m to the configured PNG path, if any
func (p *Painter) writePreview(m types.Marker) {
	opts := p.cfg.Visualizer.Preview
	if opts.Path == "" {
		return
	}
	if m.Len() == 0 {
		slog.Warn("nothing painted, preview not written", "path", opts.Path)
		return
	}

	err := preview.WriteFile(opts.Path, m, preview.Options{
		Resolution: opts.Resolution,
		Scale:      opts.Scale,
	})
	if err != nil {
		slog.Error("failed to write preview", "path", opts.Path, "error", err)
		return
	}
	slog.Info("preview written", "path", opts.Path, "points", m.Len())
}
