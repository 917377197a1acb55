package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/care/painter/internal/retry"
	"github.com/care/painter/internal/types"
)

// fakeService answers calls from a script. Responses go through msgpack so
// the wire tags are exercised.
type fakeService struct {
	calls   []string
	topics  []string
	answers map[string][]any // method -> successive answers (value or error)
}

func (f *fakeService) Call(ctx context.Context, topic, method string, req, resp any) error {
	f.calls = append(f.calls, method)
	f.topics = append(f.topics, topic)

	queue := f.answers[method]
	if len(queue) == 0 {
		return errors.New("no scripted answer")
	}
	answer := queue[0]
	if len(queue) > 1 {
		f.answers[method] = queue[1:]
	}

	if err, ok := answer.(error); ok {
		return err
	}
	if resp == nil {
		return nil
	}
	data, err := msgpack.Marshal(answer)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, resp)
}

func newTestClient(f *fakeService) *Client {
	return NewClient(f, Config{
		Prefix:  "painter/vision",
		Timeout: time.Second,
		Retry:   retry.Policy{Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
}

func TestAwaitPaletteRetriesUntilNonEmpty(t *testing.T) {
	f := &fakeService{answers: map[string][]any{
		MethodPalette: {
			errors.New("service not ready"),
			paletteResponse{},
			paletteResponse{
				Colors: []colorMsg{{R: 255}, {G: 255}},
				Poses:  []poseMsg{{X: 0.1, Y: 0.2, Z: 0.3}, {X: 0.4}},
			},
		},
	}}

	got, err := newTestClient(f).AwaitPalette(context.Background(), ModeMeasure)
	if err != nil {
		t.Fatalf("AwaitPalette() failed: %v", err)
	}

	want := []types.PaletteEntry{
		{Color: types.Color{R: 255}, Pose: types.At(0.1, 0.2, 0.3)},
		{Color: types.Color{G: 255}, Pose: types.At(0.4, 0, 0)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("palette mismatch (-want +got):\n%s", diff)
	}
	if len(f.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(f.calls))
	}
	if f.topics[0] != "painter/vision/request_palette" {
		t.Errorf("topic = %q", f.topics[0])
	}
}

func TestAwaitPaletteMismatchIsFatal(t *testing.T) {
	f := &fakeService{answers: map[string][]any{
		MethodPalette: {paletteResponse{
			Colors: []colorMsg{{R: 1}, {R: 2}},
			Poses:  []poseMsg{{X: 1}},
		}},
	}}

	_, err := newTestClient(f).AwaitPalette(context.Background(), ModeCached)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("AwaitPalette() error = %v, want ErrInvalidResponse", err)
	}
	if len(f.calls) != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", len(f.calls))
	}
}

func TestAwaitCanvasRetriesZeroWidth(t *testing.T) {
	f := &fakeService{answers: map[string][]any{
		MethodCanvas: {
			canvasResponse{},
			canvasResponse{P: poseMsg{X: 0.6, Y: -0.2, Z: 0.05}, Width: 0.3, Height: 0.2},
		},
	}}

	got, err := newTestClient(f).AwaitCanvas(context.Background(), ModeCached)
	if err != nil {
		t.Fatalf("AwaitCanvas() failed: %v", err)
	}
	want := types.Canvas{Origin: types.At(0.6, -0.2, 0.05), Width: 0.3, Height: 0.2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("canvas mismatch (-want +got):\n%s", diff)
	}
}

func TestAwaitImagePixelsEmptyIsFatal(t *testing.T) {
	f := &fakeService{answers: map[string][]any{
		MethodImagePalette: {errors.New("timeout"), paletteResponse{}},
	}}

	_, err := newTestClient(f).AwaitImagePixels(context.Background(), ModeCached)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("AwaitImagePixels() error = %v, want ErrEmptyResponse", err)
	}
	if len(f.calls) != 2 {
		t.Errorf("calls = %d, want 2 (one transport retry)", len(f.calls))
	}
}

func TestAwaitCancelled(t *testing.T) {
	f := &fakeService{answers: map[string][]any{
		MethodCanvas: {canvasResponse{}},
	}}
	c := NewClient(f, Config{
		Prefix: "painter/vision",
		Retry:  retry.Policy{Delay: time.Hour, MaxDelay: time.Hour},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.AwaitCanvas(ctx, ModeCached); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AwaitCanvas() error = %v, want deadline exceeded", err)
	}
}

func TestStartImagePreprocessing(t *testing.T) {
	f := &fakeService{answers: map[string][]any{
		MethodStartPreproc: {struct{}{}},
	}}
	if err := newTestClient(f).StartImagePreprocessing(context.Background()); err != nil {
		t.Fatalf("StartImagePreprocessing() failed: %v", err)
	}
	if diff := cmp.Diff([]string{MethodStartPreproc}, f.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}
