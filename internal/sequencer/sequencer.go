// Package sequencer paints a pixel list stroke by stroke.
//
// A Sequencer owns the progress cursor, the sticky match cursor and the brush
// load. It runs on the session goroutine and blocks on every move; the only
// thing it shares with other goroutines is the atomic cursor and the progress
// channel.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/care/painter/internal/config"
	"github.com/care/painter/internal/palette"
	"github.com/care/painter/internal/reservoir"
	"github.com/care/painter/internal/types"
)

// Errors
var (
	ErrNotPainting   = errors.New("sequencer: not in painting state")
	ErrEmptyPalette  = errors.New("sequencer: palette is empty")
	ErrEmptyImage    = errors.New("sequencer: pixel list is empty")
	ErrInvalidCanvas = errors.New("sequencer: canvas width is zero")
	ErrAlreadyPaused = errors.New("sequencer: already paused")
	ErrNotPaused     = errors.New("sequencer: not paused")
)

// State is the session lifecycle state
type State int32

const (
	StateAwaitingImage State = iota
	StatePainting
	StateDone
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateAwaitingImage:
		return "awaiting_image"
	case StatePainting:
		return "painting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Painter performs the two brush primitives
type Painter interface {
	Dip(ctx context.Context, well types.Pose) error
	Smear(ctx context.Context, target types.Pose) error
}

// Config contains sequencer settings
type Config struct {
	AliveTime      int
	BrushCoeff     float64
	MatchFailure   string        // config.MatchFailureSkip or config.MatchFailureAbort
	StrokeInterval time.Duration // pause after each stroke
}

// StrokeError reports the pixel at which painting stopped
type StrokeError struct {
	Index int
	Err   error
}

func (e *StrokeError) Error() string {
	return fmt.Sprintf("pixel %d: %v", e.Index, e.Err)
}

func (e *StrokeError) Unwrap() error {
	return e.Err
}

// Stats contains sequencer counters
type Stats struct {
	State   string
	Painted int
	Total   int
	Strokes uint64
	Reloads uint64
	Skipped uint64
	Paused  bool
}

// Sequencer paints pixels in list order
type Sequencer struct {
	cfg   Config
	brush Painter

	matcher    *palette.Matcher
	canvas     types.Canvas
	pixels     []types.PixelEntry
	load       *reservoir.Load
	loadedWell int

	state    atomic.Int32
	cursor   atomic.Int64
	total    atomic.Int64
	progress chan types.ProgressEvent

	strokes atomic.Uint64
	reloads atomic.Uint64
	skipped atomic.Uint64

	mu        sync.Mutex
	paused    bool
	resume    chan struct{}
	closeOnce sync.Once
}

// New creates a sequencer awaiting its image
func New(cfg Config, brush Painter) *Sequencer {
	if cfg.MatchFailure == "" {
		cfg.MatchFailure = config.MatchFailureSkip
	}
	return &Sequencer{
		cfg:        cfg,
		brush:      brush,
		load:       reservoir.New(cfg.AliveTime, cfg.BrushCoeff),
		loadedWell: -1,
	}
}

// Begin validates the session data and enters the painting state. The
// progress channel is sized to the pixel count so Run never blocks on it.
func (s *Sequencer) Begin(entries []types.PaletteEntry, canvas types.Canvas, pixels []types.PixelEntry) error {
	if State(s.state.Load()) != StateAwaitingImage {
		return fmt.Errorf("begin in state %s", State(s.state.Load()))
	}
	if len(entries) == 0 {
		return ErrEmptyPalette
	}
	if len(pixels) == 0 {
		return ErrEmptyImage
	}
	if !canvas.Valid() {
		return ErrInvalidCanvas
	}

	s.matcher = palette.NewMatcher(entries)
	s.canvas = canvas
	s.pixels = pixels
	s.progress = make(chan types.ProgressEvent, len(pixels))
	s.total.Store(int64(len(pixels)))
	s.state.Store(int32(StatePainting))

	slog.Info("painting session ready",
		"pixels", len(pixels),
		"wells", len(entries),
		"alive_time", s.load.Capacity(),
		"match_failure", s.cfg.MatchFailure,
	)
	return nil
}

// Progress returns the channel carrying one event per advanced pixel.
// It is nil before Begin and closed by Close.
func (s *Sequencer) Progress() <-chan types.ProgressEvent {
	return s.progress
}

// PaintedCount returns the number of pixels processed so far
func (s *Sequencer) PaintedCount() int {
	return int(s.cursor.Load())
}

// Total returns the pixel count of the session
func (s *Sequencer) Total() int {
	return int(s.total.Load())
}

// Pixels returns the session's pixel list. Callers must not modify it.
func (s *Sequencer) Pixels() []types.PixelEntry {
	return s.pixels
}

// State returns the lifecycle state
func (s *Sequencer) State() State {
	return State(s.state.Load())
}

// Run paints from the current cursor until every pixel is processed, a stroke
// fails or ctx is cancelled. After a failure, calling Run again resumes at
// PaintedCount with the brush forced to re-dip.
func (s *Sequencer) Run(ctx context.Context) error {
	switch s.State() {
	case StateDone:
		return nil
	case StatePainting:
	default:
		return ErrNotPainting
	}

	start := int(s.cursor.Load())
	if start > 0 {
		slog.Info("resuming painting", "from", start, "total", len(s.pixels))
	}

	for i := start; i < len(s.pixels); i++ {
		if err := s.waitIfPaused(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		painted, err := s.paintPixel(ctx, i)
		if err != nil {
			return err
		}

		if painted && s.cfg.StrokeInterval > 0 && i < len(s.pixels)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.StrokeInterval):
			}
		}
	}

	s.state.Store(int32(StateDone))
	slog.Info("painting finished",
		"painted", s.PaintedCount(),
		"strokes", s.strokes.Load(),
		"reloads", s.reloads.Load(),
		"skipped", s.skipped.Load(),
	)
	return nil
}

// paintPixel processes pixel i and reports whether a stroke was made
func (s *Sequencer) paintPixel(ctx context.Context, i int) (bool, error) {
	px := s.pixels[i]

	well, err := s.matcher.Match(px.Color)
	if err != nil {
		nearest, dist := s.matcher.Nearest(px.Color)
		slog.Error("no palette well for pixel",
			"index", i,
			"color", palette.Hex(px.Color),
			"nearest_well", nearest,
			"nearest_color", palette.Hex(s.matcher.Entry(nearest).Color),
			"distance", dist,
			"policy", s.cfg.MatchFailure,
		)
		if s.cfg.MatchFailure == config.MatchFailureAbort {
			return false, &StrokeError{Index: i, Err: err}
		}
		s.skipped.Add(1)
		s.advance(i, true)
		return false, nil
	}

	if s.load.Remaining() == 0 || well != s.loadedWell {
		entry := s.matcher.Entry(well)
		slog.Debug("dipping brush", "well", well, "color", entry.Color.String(), "remaining", s.load.Remaining())
		if err := s.brush.Dip(ctx, entry.Pose); err != nil {
			s.unload()
			return false, &StrokeError{Index: i, Err: err}
		}
		s.load.Reload()
		s.loadedWell = well
		s.reloads.Add(1)
	}

	target := px.Pose.Offset(s.canvas.Origin)
	if err := s.brush.Smear(ctx, target); err != nil {
		s.unload()
		return false, &StrokeError{Index: i, Err: err}
	}

	s.strokes.Add(1)
	s.advance(i, false)
	s.load.ConsumeStroke()
	return true, nil
}

// advance stores the new cursor before announcing it
func (s *Sequencer) advance(i int, skipped bool) {
	count := i + 1
	s.cursor.Store(int64(count))

	select {
	case s.progress <- types.ProgressEvent{Count: count, Skipped: skipped}:
	default:
		// Unreachable while capacity equals the pixel count
		slog.Warn("progress channel full", "count", count)
	}
}

func (s *Sequencer) unload() {
	s.load.Empty()
	s.loadedWell = -1
}

// Pause stops Run before the next stroke
func (s *Sequencer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return ErrAlreadyPaused
	}
	s.paused = true
	s.resume = make(chan struct{})
	slog.Info("painting paused", "painted", s.PaintedCount())
	return nil
}

// Resume releases a paused Run
func (s *Sequencer) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return ErrNotPaused
	}
	s.paused = false
	close(s.resume)
	slog.Info("painting resumed", "painted", s.PaintedCount())
	return nil
}

// IsPaused reports whether the stroke loop is gated
func (s *Sequencer) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Sequencer) waitIfPaused(ctx context.Context) error {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return nil
	}
	ch := s.resume
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the progress channel. Run must not be called afterwards.
func (s *Sequencer) Close() {
	s.closeOnce.Do(func() {
		if s.progress != nil {
			close(s.progress)
		}
	})
}

// Stats returns a snapshot of the sequencer counters
func (s *Sequencer) Stats() Stats {
	return Stats{
		State:   s.State().String(),
		Painted: s.PaintedCount(),
		Total:   s.Total(),
		Strokes: s.strokes.Load(),
		Reloads: s.reloads.Load(),
		Skipped: s.skipped.Load(),
		Paused:  s.IsPaused(),
	}
}
