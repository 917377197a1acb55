package motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/care/painter/internal/rpc"
	"github.com/care/painter/internal/types"
)

type recordedCall struct {
	Topic    string
	Method   string
	Body     moveRequest
	Deadline bool
}

type fakeArm struct {
	calls []recordedCall
	err   error
	block bool
}

func (f *fakeArm) Call(ctx context.Context, topic, method string, req, resp any) error {
	data, err := msgpack.Marshal(req)
	if err != nil {
		return err
	}
	var body moveRequest
	_ = msgpack.Unmarshal(data, &body)

	_, hasDeadline := ctx.Deadline()
	f.calls = append(f.calls, recordedCall{Topic: topic, Method: method, Body: body, Deadline: hasDeadline})

	if f.block {
		<-ctx.Done()
		return rpc.ErrTimeout
	}
	return f.err
}

func TestMoveToUsesIdentityOrientation(t *testing.T) {
	arm := &fakeArm{}
	c := NewClient(arm, Config{Prefix: "painter/motion", Timeout: time.Second, Debug: true})

	pose := types.At(0.5, -0.1, 0.2)
	pose.Frame = "base_link"
	if err := c.MoveTo(context.Background(), pose); err != nil {
		t.Fatalf("MoveTo() failed: %v", err)
	}

	want := []recordedCall{{
		Topic:  "painter/motion/move_to_pose",
		Method: MethodMoveToPose,
		Body: moveRequest{
			Frame:       "base_link",
			Position:    point{X: 0.5, Y: -0.1, Z: 0.2},
			Orientation: quaternion{W: 1},
			Debug:       true,
		},
		Deadline: true,
	}}
	if diff := cmp.Diff(want, arm.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

// TestMoveToTimeout validates that a hung motion service cannot hang the
// session: every move carries its own deadline.
func TestMoveToTimeout(t *testing.T) {
	arm := &fakeArm{block: true}
	c := NewClient(arm, Config{Prefix: "painter/motion", Timeout: 20 * time.Millisecond})

	start := time.Now()
	err := c.MoveTo(context.Background(), types.At(0, 0, 0))
	if !errors.Is(err, rpc.ErrTimeout) {
		t.Fatalf("MoveTo() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("MoveTo() took %v, want ~20ms", elapsed)
	}
}

func TestMoveToNamed(t *testing.T) {
	arm := &fakeArm{err: &rpc.RemoteError{Method: MethodMoveToNamed, Message: "unknown target"}}
	c := NewClient(arm, Config{Prefix: "painter/motion"})

	err := c.MoveToNamed(context.Background(), "home")
	var remote *rpc.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("MoveToNamed() error = %v, want *rpc.RemoteError", err)
	}
	if arm.calls[0].Method != MethodMoveToNamed || arm.calls[0].Deadline {
		t.Errorf("unexpected call %+v", arm.calls[0])
	}
}
