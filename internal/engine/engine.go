// Package engine implements execution targets and the per-kind capability
// tables used to resolve operation descriptors into primitive descriptors.
package engine

import (
	"context"
	"sync/atomic"

	"github.com/born-ml/dnn/internal/status"
	"k8s.io/klog/v2"
)

// Kind identifies a family of engines.
type Kind int

// Supported engine kinds.
const (
	CPU Kind = iota
	CPULazy
	WebGPU
)

// String returns a human-readable engine kind name.
func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case CPULazy:
		return "cpu_lazy"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// OpKind identifies an operation family in a capability table.
type OpKind int

// Operation families.
const (
	OpMemory OpKind = iota
	OpReorder
	OpConvolution
)

// String returns the operation family name.
func (k OpKind) String() string {
	switch k {
	case OpMemory:
		return "memory"
	case OpReorder:
		return "reorder"
	case OpConvolution:
		return "convolution"
	default:
		return "unknown"
	}
}

// OpDesc is an engine-independent operation descriptor.
type OpDesc interface {
	OpKind() OpKind
}

// PrimitiveDesc is an operation descriptor resolved against an engine.
type PrimitiveDesc interface {
	OpKind() OpKind
	Engine() *Engine
}

// InitFunc resolves d against e. Returning status.Unimplemented lets the
// next registered function for the same operation family try.
type InitFunc func(e *Engine, d OpDesc) (PrimitiveDesc, error)

// Capabilities maps operation families to ordered resolution functions.
type Capabilities map[OpKind][]InitFunc

// Executable is a unit of work handed to Submit.
type Executable interface {
	Execute(ctx context.Context) error
}

var nextID atomic.Uint64

// Engine is an execution target. It holds no state about any particular
// computation graph.
type Engine struct {
	kind      Kind
	index     int
	lazy      bool
	id        uint64
	caps      Capabilities
	destroyed atomic.Bool
}

// New creates an engine of the given kind. Factories call this; callers go
// through a Registry.
func New(kind Kind, index int, lazy bool, caps Capabilities) *Engine {
	e := &Engine{
		kind:  kind,
		index: index,
		lazy:  lazy,
		id:    nextID.Add(1),
		caps:  caps,
	}
	klog.V(1).Infof("engine: created %s[%d] (id=%d, lazy=%t)", kind, index, e.id, lazy)
	return e
}

// Kind returns the engine kind.
func (e *Engine) Kind() Kind { return e.kind }

// Index returns the engine index among engines of its kind.
func (e *Engine) Index() int { return e.index }

// IsLazy reports whether operation primitives are deferred until submission.
func (e *Engine) IsLazy() bool { return e.lazy }

// ID returns a process-unique identity for the engine.
func (e *Engine) ID() uint64 { return e.id }

// Destroyed reports whether Destroy was called.
func (e *Engine) Destroyed() bool { return e.destroyed.Load() }

// Supports reports whether any resolution function is registered for op.
func (e *Engine) Supports(op OpKind) bool {
	return len(e.caps[op]) > 0
}

// Resolve binds d to the engine using the capability table.
func (e *Engine) Resolve(d OpDesc) (PrimitiveDesc, error) {
	if e.Destroyed() {
		return nil, status.Errorf(status.InvalidArgument, "engine: %s[%d] is destroyed", e.kind, e.index)
	}
	op := d.OpKind()
	for _, init := range e.caps[op] {
		pd, err := init(e, d)
		if err == nil {
			return pd, nil
		}
		if status.Of(err) != status.Unimplemented {
			return nil, err
		}
	}
	return nil, status.Errorf(status.Unimplemented, "engine: %s has no %s implementation for this descriptor", e.kind, op)
}

// Submit executes work in order and stops at the first failure. It returns
// the index of the item that failed, or -1. A cancelled ctx stops the loop
// before the next item and is reported with index -1, since nothing failed.
func (e *Engine) Submit(ctx context.Context, work []Executable) (int, error) {
	for i, w := range work {
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		if err := w.Execute(ctx); err != nil {
			return i, err
		}
	}
	return -1, nil
}

// Destroy releases the engine. Descriptors bound to a destroyed engine can no
// longer be resolved.
func (e *Engine) Destroy() {
	if e.destroyed.Swap(true) {
		klog.Warningf("engine: %s[%d] destroyed twice", e.kind, e.index)
		return
	}
	klog.V(1).Infof("engine: destroyed %s[%d] (id=%d)", e.kind, e.index, e.id)
}
