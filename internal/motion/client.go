// Package motion drives the arm through the external motion service.
package motion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/care/painter/internal/rpc"
	"github.com/care/painter/internal/types"
)

// RPC method names
const (
	MethodMoveToPose  = "move_to_pose"
	MethodMoveToNamed = "move_to_named"
)

// Caller performs one request/response exchange
type Caller interface {
	Call(ctx context.Context, topic, method string, req, resp any) error
}

// Config contains client settings
type Config struct {
	Prefix  string        // topic prefix, e.g. painter/motion
	Timeout time.Duration // bound on a single move
	Debug   bool          // ask the planner to visualize each plan
}

// Client issues blocking moves. Moves are never retried here: a failed move
// must surface to the caller so it can abort the stroke.
type Client struct {
	caller Caller
	cfg    Config
}

// NewClient creates a motion client
func NewClient(caller Caller, cfg Config) *Client {
	return &Client{caller: caller, cfg: cfg}
}

type quaternion struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
	W float64 `msgpack:"w"`
}

type point struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
}

type moveRequest struct {
	Frame       string     `msgpack:"frame,omitempty"`
	Position    point      `msgpack:"position"`
	Orientation quaternion `msgpack:"orientation"`
	Debug       bool       `msgpack:"debug"`
}

type namedRequest struct {
	Target string `msgpack:"target"`
}

// identity is the only orientation used for painting
var identity = quaternion{W: 1}

// MoveTo moves the end-effector to pose and blocks until the move completes,
// fails or the per-move timeout expires.
func (c *Client) MoveTo(ctx context.Context, pose types.Pose) error {
	req := moveRequest{
		Frame: pose.Frame,
		Position: point{
			X: pose.Position.X,
			Y: pose.Position.Y,
			Z: pose.Position.Z,
		},
		Orientation: identity,
		Debug:       c.cfg.Debug,
	}

	start := time.Now()
	if err := c.call(ctx, MethodMoveToPose, req); err != nil {
		return fmt.Errorf("move to %s: %w", pose, err)
	}

	slog.Debug("move completed", "pose", pose.String(), "duration", time.Since(start))
	return nil
}

// MoveToNamed moves to a target predefined in the motion service (e.g. "home")
func (c *Client) MoveToNamed(ctx context.Context, target string) error {
	if err := c.call(ctx, MethodMoveToNamed, namedRequest{Target: target}); err != nil {
		return fmt.Errorf("move to %q: %w", target, err)
	}
	slog.Info("arm reached named target", "target", target)
	return nil
}

func (c *Client) call(ctx context.Context, method string, req any) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	err := c.caller.Call(ctx, c.cfg.Prefix+"/"+method, method, req, nil)
	if err != nil {
		slog.Error("motion call failed",
			"method", method,
			"category", rpc.Classify(err).String(),
			"error", err,
		)
	}
	return err
}
