// Package stream submits primitives for execution and waits for them.
//
// Primitives on eager engines have already run when they were created, so
// submitting them only confirms completion. Primitives on lazy engines run in
// submission order; the first failure stops the batch.
package stream

import (
	"context"
	"sync"

	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/primitive"
	"github.com/born-ml/dnn/internal/status"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNotReady is returned by a non-blocking Wait while a submission is still
// running.
var ErrNotReady = errors.New("stream: submission not finished")

// State is the lifecycle state of a Stream.
type State int

// Stream states.
const (
	Open State = iota
	Submitted
	Drained
	Destroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Submitted:
		return "submitted"
	case Drained:
		return "drained"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Stream orders the execution of primitives from one graph.
type Stream struct {
	g *primitive.Graph

	mu    sync.Mutex
	state State
	done  chan struct{}
	err   error
	// pending is set by a successful lazy submission until Wait observes it.
	pending bool
}

// New creates an open stream over g.
func New(g *primitive.Graph) (*Stream, error) {
	if g == nil {
		return nil, status.Errorf(status.InvalidArgument, "stream: nil graph")
	}
	return &Stream{g: g, state: Open}, nil
}

// State returns the current state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit executes handles in order. All handles must belong to engines of
// the same laziness. A failing lazy primitive is reported as a
// *primitive.ExecError and the primitives after it are not attempted; the
// failure must be collected with Wait before the next Submit. Cancelling ctx
// stops a lazy batch between primitives and returns ctx's error unwrapped.
func (s *Stream) Submit(ctx context.Context, handles []primitive.Handle) error {
	engines, lazy, err := s.engines(handles)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch {
	case s.state == Destroyed:
		s.mu.Unlock()
		return status.Errorf(status.InvalidArgument, "stream: submit on destroyed stream")
	case s.state == Submitted && s.err != nil:
		s.mu.Unlock()
		return status.Errorf(status.InvalidArgument, "stream: previous submission failed and was not waited on")
	case s.inFlight():
		s.mu.Unlock()
		return status.Errorf(status.InvalidArgument, "stream: another submission is running")
	}
	done := make(chan struct{})
	s.state, s.done, s.err, s.pending = Submitted, done, nil, false
	s.mu.Unlock()

	klog.V(1).Infof("stream: submitting %d primitives (lazy=%t)", len(handles), lazy)
	var runErr error
	if lazy {
		runErr = s.run(ctx, handles, engines)
	}

	s.mu.Lock()
	s.err = runErr
	s.pending = lazy && runErr == nil
	close(done)
	s.mu.Unlock()
	return runErr
}

// inFlight reports whether a submission has not finished. Callers hold s.mu.
func (s *Stream) inFlight() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// engines resolves the engine of every handle and checks that they agree on
// laziness.
func (s *Stream) engines(handles []primitive.Handle) ([]*engine.Engine, bool, error) {
	engines := make([]*engine.Engine, len(handles))
	lazy := false
	for i, h := range handles {
		e, err := s.g.Engine(h)
		if err != nil {
			return nil, false, err
		}
		if i == 0 {
			lazy = e.IsLazy()
		} else if e.IsLazy() != lazy {
			return nil, false, status.Errorf(status.InvalidArgument,
				"stream: primitive %d mixes lazy and eager engines", h)
		}
		engines[i] = e
	}
	return engines, lazy, nil
}

// run hands consecutive primitives that share an engine to that engine.
func (s *Stream) run(ctx context.Context, handles []primitive.Handle, engines []*engine.Engine) error {
	for start := 0; start < len(handles); {
		end := start + 1
		for end < len(handles) && engines[end] == engines[start] {
			end++
		}
		work := make([]engine.Executable, 0, end-start)
		for _, h := range handles[start:end] {
			work = append(work, s.g.Executable(h))
		}
		if i, err := engines[start].Submit(ctx, work); err != nil {
			if i < 0 {
				return err
			}
			h := handles[start+i]
			klog.V(1).Infof("stream: primitive %d failed: %v", h, err)
			return &primitive.ExecError{Primitive: h, Err: err}
		}
		start = end
	}
	return nil
}

// Wait waits for the last submission. With block false it returns
// ErrNotReady instead of waiting. The failure of the last submission is
// returned once; afterwards the stream is drained.
func (s *Stream) Wait(ctx context.Context, block bool) error {
	s.mu.Lock()
	if s.state == Destroyed {
		s.mu.Unlock()
		return status.Errorf(status.InvalidArgument, "stream: wait on destroyed stream")
	}
	if s.state != Submitted {
		s.mu.Unlock()
		return nil
	}
	done := s.done
	s.mu.Unlock()

	if block {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		select {
		case <-done:
		default:
			return ErrNotReady
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return nil
	}
	err := s.err
	s.err = nil
	s.pending = false
	s.state = Drained
	return err
}

// Destroy releases the stream. It fails while a submission is running or a
// successful lazy submission has not been waited on. A submission that
// stopped at a failure has nothing outstanding and may be destroyed without
// collecting the failure.
func (s *Stream) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == Destroyed:
		klog.Warningf("stream: destroyed twice")
		return nil
	case s.inFlight():
		return status.Errorf(status.InvalidArgument, "stream: destroy while a submission is running")
	case s.pending:
		return status.Errorf(status.InvalidArgument, "stream: destroy with outstanding submission")
	}
	s.state = Destroyed
	s.err = nil
	return nil
}
