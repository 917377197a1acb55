// Package vision queries the external vision service for the palette, the
// canvas and the preprocessed target image.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/care/painter/internal/retry"
	"github.com/care/painter/internal/types"
)

// Query modes understood by the vision service
const (
	ModeMeasure int32 = 0 // detect from the current camera frame
	ModeCached  int32 = 1 // return the last measurement
)

// RPC method names
const (
	MethodPalette      = "request_palette"
	MethodCanvas       = "request_canvas"
	MethodStartPreproc = "start_image_preprocessing"
	MethodImagePalette = "request_image_palette"
)

var (
	ErrEmptyResponse   = errors.New("vision: empty response")
	ErrInvalidResponse = errors.New("vision: invalid response")
)

// Caller performs one request/response exchange
type Caller interface {
	Call(ctx context.Context, topic, method string, req, resp any) error
}

// Config contains client settings
type Config struct {
	Prefix  string        // topic prefix, e.g. painter/vision
	Timeout time.Duration // per query
	Retry   retry.Policy  // setup retry loop
}

// Client talks to the vision service
type Client struct {
	caller Caller
	cfg    Config
}

// NewClient creates a vision client
func NewClient(caller Caller, cfg Config) *Client {
	return &Client{caller: caller, cfg: cfg}
}

type colorMsg struct {
	R uint8 `msgpack:"r"`
	G uint8 `msgpack:"g"`
	B uint8 `msgpack:"b"`
}

type poseMsg struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
}

type modeRequest struct {
	Mode int32 `msgpack:"mode"`
}

type paletteResponse struct {
	Colors []colorMsg `msgpack:"colors"`
	Poses  []poseMsg  `msgpack:"poses"`
}

type canvasResponse struct {
	P      poseMsg `msgpack:"p"`
	Width  float64 `msgpack:"width"`
	Height float64 `msgpack:"height"`
}

func (p poseMsg) pose() types.Pose {
	return types.Pose{Position: r3.Vec{X: p.X, Y: p.Y, Z: p.Z}}
}

func (c colorMsg) color() types.Color {
	return types.Color{R: c.R, G: c.G, B: c.B}
}

// DescribePalette returns the paint wells in service order
func (c *Client) DescribePalette(ctx context.Context, mode int32) ([]types.PaletteEntry, error) {
	var resp paletteResponse
	if err := c.call(ctx, MethodPalette, modeRequest{Mode: mode}, &resp); err != nil {
		return nil, err
	}
	if err := checkPairs(resp); err != nil {
		return nil, err
	}

	entries := make([]types.PaletteEntry, len(resp.Colors))
	for i := range resp.Colors {
		entries[i] = types.PaletteEntry{Color: resp.Colors[i].color(), Pose: resp.Poses[i].pose()}
	}
	return entries, nil
}

// DescribeCanvas returns the canvas origin and size
func (c *Client) DescribeCanvas(ctx context.Context, mode int32) (types.Canvas, error) {
	var resp canvasResponse
	if err := c.call(ctx, MethodCanvas, modeRequest{Mode: mode}, &resp); err != nil {
		return types.Canvas{}, err
	}
	return types.Canvas{Origin: resp.P.pose(), Width: resp.Width, Height: resp.Height}, nil
}

// StartImagePreprocessing asks the service to prepare the target image
func (c *Client) StartImagePreprocessing(ctx context.Context) error {
	return c.call(ctx, MethodStartPreproc, nil, nil)
}

// DescribeImagePixels returns the target pixels in painting order
func (c *Client) DescribeImagePixels(ctx context.Context, mode int32) ([]types.PixelEntry, error) {
	var resp paletteResponse
	if err := c.call(ctx, MethodImagePalette, modeRequest{Mode: mode}, &resp); err != nil {
		return nil, err
	}
	if err := checkPairs(resp); err != nil {
		return nil, err
	}

	pixels := make([]types.PixelEntry, len(resp.Colors))
	for i := range resp.Colors {
		pixels[i] = types.PixelEntry{Color: resp.Colors[i].color(), Pose: resp.Poses[i].pose()}
	}
	return pixels, nil
}

// AwaitPalette retries DescribePalette until the service reports at least one
// well. Mismatched color/pose lists abort immediately.
func (c *Client) AwaitPalette(ctx context.Context, mode int32) ([]types.PaletteEntry, error) {
	var palette []types.PaletteEntry
	err := retry.Do(ctx, MethodPalette, c.cfg.Retry, func(ctx context.Context) error {
		p, err := c.DescribePalette(ctx, mode)
		if errors.Is(err, ErrInvalidResponse) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		palette = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("palette received", "wells", len(palette), "mode", mode)
	return palette, nil
}

// AwaitCanvas retries DescribeCanvas until the reported width is non-zero
func (c *Client) AwaitCanvas(ctx context.Context, mode int32) (types.Canvas, error) {
	var canvas types.Canvas
	err := retry.Do(ctx, MethodCanvas, c.cfg.Retry, func(ctx context.Context) error {
		cv, err := c.DescribeCanvas(ctx, mode)
		if err != nil {
			return err
		}
		if !cv.Valid() {
			return fmt.Errorf("canvas width is 0: %w", ErrEmptyResponse)
		}
		canvas = cv
		return nil
	})
	if err != nil {
		return types.Canvas{}, err
	}

	slog.Info("canvas received",
		"origin", canvas.Origin.String(),
		"width", canvas.Width,
		"height", canvas.Height,
	)
	return canvas, nil
}

// AwaitImagePixels retries transport failures of DescribeImagePixels. An
// empty or mismatched pixel list is a fatal precondition and is returned as is.
func (c *Client) AwaitImagePixels(ctx context.Context, mode int32) ([]types.PixelEntry, error) {
	var pixels []types.PixelEntry
	err := retry.Do(ctx, MethodImagePalette, c.cfg.Retry, func(ctx context.Context) error {
		px, err := c.DescribeImagePixels(ctx, mode)
		if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrInvalidResponse) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		pixels = px
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("image pixels received", "pixels", len(pixels))
	return pixels, nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if err := c.caller.Call(ctx, c.cfg.Prefix+"/"+method, method, req, resp); err != nil {
		return fmt.Errorf("vision %s: %w", method, err)
	}
	return nil
}

func checkPairs(resp paletteResponse) error {
	if len(resp.Colors) != len(resp.Poses) {
		return fmt.Errorf("%d colors but %d poses: %w",
			len(resp.Colors), len(resp.Poses), ErrInvalidResponse)
	}
	if len(resp.Colors) == 0 {
		return ErrEmptyResponse
	}
	return nil
}
