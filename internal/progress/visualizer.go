// Package progress mirrors painting progress as a renderable point set.
package progress

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/care/painter/internal/types"
)

// Bus receives published markers
type Bus interface {
	Publish(m types.Marker)
	SubscriberCount() int
}

// Config contains visualizer settings
type Config struct {
	Period       time.Duration // publish tick
	FrameID      string
	Namespace    string
	ID           int
	Scale        float64
	Lifetime     time.Duration
	PollInterval time.Duration // sleep between subscriber checks while nobody listens
}

// Stats contains visualizer counters
type Stats struct {
	Published uint64 `json:"published"`
	Withheld  uint64 `json:"withheld"`
	Desyncs   uint64 `json:"desyncs"`
	Points    int64  `json:"points"`
	LastCount int64  `json:"last_count"`
}

// Visualizer publishes the painted pixels on a fixed tick. It reads only the
// progress events and the immutable pixel list.
type Visualizer struct {
	cfg    Config
	bus    Bus
	pixels []types.PixelEntry

	points []types.MarkerPoint
	colors []types.MarkerColor
	last   int
	seq    uint64

	published atomic.Uint64
	withheld  atomic.Uint64
	desyncs   atomic.Uint64
	drawn     atomic.Int64
	lastCount atomic.Int64
}

// New creates a visualizer over pixels
func New(cfg Config, bus Bus, pixels []types.PixelEntry) *Visualizer {
	if cfg.Period <= 0 {
		cfg.Period = time.Second / 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Visualizer{
		cfg:    cfg,
		bus:    bus,
		pixels: pixels,
		points: make([]types.MarkerPoint, 0, len(pixels)),
		colors: make([]types.MarkerColor, 0, len(pixels)),
	}
}

// Run drains events each tick and publishes the painted point set. It
// returns nil after a final publish once events is closed, or ctx.Err().
func (v *Visualizer) Run(ctx context.Context, events <-chan types.ProgressEvent) error {
	ticker := time.NewTicker(v.cfg.Period)
	defer ticker.Stop()

	slog.Info("progress visualizer started",
		"pixels", len(v.pixels),
		"period", v.cfg.Period,
		"frame_id", v.cfg.FrameID,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		open := v.drain(events)

		if !open {
			if v.bus.SubscriberCount() > 0 {
				v.publish()
			}
			slog.Info("progress visualizer stopped",
				"points", len(v.points),
				"published", v.published.Load(),
				"desyncs", v.desyncs.Load(),
			)
			return nil
		}

		if err := v.publishWhenWatched(ctx); err != nil {
			return err
		}
	}
}

// Complete draws every pixel of the image and returns the resulting marker.
// Not safe to call while Run or Static is running.
func (v *Visualizer) Complete() types.Marker {
	if len(v.points) != len(v.pixels) {
		// Fresh backing arrays: earlier markers may still be held by viewers
		v.points = make([]types.MarkerPoint, 0, len(v.pixels))
		v.colors = make([]types.MarkerColor, 0, len(v.pixels))
		for i := range v.pixels {
			v.draw(i)
		}
		v.last = len(v.pixels)
		v.lastCount.Store(int64(v.last))
	}
	return v.Marker()
}

// Marker returns the current point set as a marker without publishing it.
// Not safe to call while Run or Static is running.
func (v *Visualizer) Marker() types.Marker {
	return v.marker()
}

// Static publishes every pixel of the image each tick until ctx is done
func (v *Visualizer) Static(ctx context.Context) error {
	v.Complete()

	ticker := time.NewTicker(v.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := v.publishWhenWatched(ctx); err != nil {
			return err
		}
	}
}

// drain consumes every pending event and reports whether events is still open
func (v *Visualizer) drain(events <-chan types.ProgressEvent) bool {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			v.apply(ev)
		default:
			return true
		}
	}
}

// apply adds the pixels covered by ev. Counts must arrive consecutively; a
// gap is logged and then filled so the view catches up.
func (v *Visualizer) apply(ev types.ProgressEvent) {
	if ev.Count != v.last+1 {
		v.desyncs.Add(1)
		slog.Error("progress cursor desync",
			"expected", v.last+1,
			"got", ev.Count,
		)
	}

	count := min(ev.Count, len(v.pixels))
	if count <= v.last {
		return
	}

	for i := v.last; i < count; i++ {
		if ev.Skipped && i == ev.Count-1 {
			continue
		}
		v.draw(i)
	}
	v.last = count
	v.lastCount.Store(int64(count))
}

func (v *Visualizer) draw(i int) {
	px := v.pixels[i]
	v.points = append(v.points, types.MarkerPoint{
		X: px.Pose.Position.X,
		Y: px.Pose.Position.Y,
		Z: px.Pose.Position.Z,
	})
	v.colors = append(v.colors, types.NewMarkerColor(px.Color))
	v.drawn.Store(int64(len(v.points)))
}

// publishWhenWatched publishes if anybody listens; otherwise it withholds
// and sleeps one poll interval.
func (v *Visualizer) publishWhenWatched(ctx context.Context) error {
	if v.bus.SubscriberCount() > 0 {
		v.publish()
		return nil
	}

	if v.withheld.Add(1) == 1 {
		slog.Info("no marker subscribers, withholding publish", "poll_interval", v.cfg.PollInterval)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(v.cfg.PollInterval):
		return nil
	}
}

func (v *Visualizer) publish() {
	v.seq++
	v.bus.Publish(v.marker())
	v.published.Add(1)
}

func (v *Visualizer) marker() types.Marker {
	return types.Marker{
		FrameID:   v.cfg.FrameID,
		Namespace: v.cfg.Namespace,
		ID:        v.cfg.ID,
		Stamp:     time.Now(),
		Scale:     v.cfg.Scale,
		Lifetime:  v.cfg.Lifetime,
		Seq:       v.seq,
		// Published prefixes are never rewritten, only appended to
		Points: slices.Clip(v.points),
		Colors: slices.Clip(v.colors),
	}
}

// Stats returns a snapshot of the visualizer counters
func (v *Visualizer) Stats() Stats {
	return Stats{
		Published: v.published.Load(),
		Withheld:  v.withheld.Load(),
		Desyncs:   v.desyncs.Load(),
		Points:    v.drawn.Load(),
		LastCount: v.lastCount.Load(),
	}
}
