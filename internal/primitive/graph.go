package primitive

import (
	"context"
	"sync"

	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/status"
	"k8s.io/klog/v2"
)

type node struct {
	kind   Kind
	engine *engine.Engine
	alive  bool

	// memory primitives
	mpd   memory.PrimitiveDesc
	data  []float32
	owned bool

	// operation primitives
	desc    Desc
	inputs  []At
	outputs []Handle
}

// Graph is an arena of primitives addressed by Handle. A Graph is not safe
// for concurrent mutation; executing primitives concurrently with reads is.
type Graph struct {
	mu    sync.RWMutex
	nodes []*node
	pool  *memory.Pool
}

// Option configures a Graph.
type Option func(*Graph)

// WithPool makes the graph allocate internally-owned storage from p.
func WithPool(p *memory.Pool) Option {
	return func(g *Graph) { g.pool = p }
}

// NewGraph creates an empty primitive graph.
func NewGraph(opts ...Option) *Graph {
	g := &Graph{}
	for _, opt := range opts {
		opt(g)
	}
	if g.pool == nil {
		g.pool = memory.NewPool()
	}
	return g
}

// Pool returns the storage pool of the graph.
func (g *Graph) Pool() *memory.Pool {
	return g.pool
}

// Len returns the number of primitives ever created, including destroyed ones.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// CreateMemory creates a memory primitive. A nil data allocates storage that
// the graph owns and releases on Destroy; otherwise data is used in place and
// is never released by the graph.
func (g *Graph) CreateMemory(mpd memory.PrimitiveDesc, data []float32) (Handle, error) {
	e := mpd.Engine()
	if e == nil || e.Destroyed() {
		return InvalidHandle, status.Errorf(status.InvalidArgument, "primitive: memory descriptor is not bound to a live engine")
	}
	if mpd.Desc.IsAny() {
		return InvalidHandle, status.Errorf(status.InvalidArgument, "primitive: memory format any")
	}

	need := mpd.Desc.StorageSize()
	n := &node{kind: KindMemory, engine: e, alive: true, mpd: mpd}
	if data == nil {
		n.data = g.pool.Acquire(need)
		n.owned = true
	} else {
		if len(data) < need {
			return InvalidHandle, status.Errorf(status.InvalidArgument,
				"primitive: storage holds %d elements, layout %s needs %d", len(data), mpd.Desc, need)
		}
		n.data = data
	}
	return g.add(n), nil
}

// Create creates an operation primitive from desc. inputs must match
// desc.Inputs() and outputs must be memory primitives matching
// desc.Outputs(). On an eager engine the primitive executes before Create
// returns; a failing execution creates nothing.
func (g *Graph) Create(desc Desc, inputs []At, outputs []Handle) (Handle, error) {
	if desc == nil {
		return InvalidHandle, status.Errorf(status.InvalidArgument, "primitive: nil descriptor")
	}
	e := desc.Engine()
	if e == nil || e.Destroyed() {
		return InvalidHandle, status.Errorf(status.InvalidArgument, "primitive: descriptor is not bound to a live engine")
	}
	wantIn, wantOut := desc.Inputs(), desc.Outputs()
	if len(inputs) != len(wantIn) {
		return InvalidHandle, status.Errorf(status.InvalidArgument,
			"primitive: %s expects %d inputs, got %d", desc.OpKind(), len(wantIn), len(inputs))
	}
	if len(outputs) != len(wantOut) {
		return InvalidHandle, status.Errorf(status.InvalidArgument,
			"primitive: %s expects %d outputs, got %d", desc.OpKind(), len(wantOut), len(outputs))
	}

	g.mu.RLock()
	for i, at := range inputs {
		mpd, _, err := g.slot(at)
		if err != nil {
			g.mu.RUnlock()
			return InvalidHandle, err
		}
		if !mpd.Equal(wantIn[i]) {
			g.mu.RUnlock()
			return InvalidHandle, status.Errorf(status.InvalidArgument,
				"primitive: input %d is %s, expected %s", i, mpd.Desc, wantIn[i].Desc)
		}
	}
	for i, h := range outputs {
		mpd, _, err := g.slot(At{Primitive: h})
		if err != nil {
			g.mu.RUnlock()
			return InvalidHandle, err
		}
		if g.nodes[h].kind != KindMemory {
			g.mu.RUnlock()
			return InvalidHandle, status.Errorf(status.InvalidArgument, "primitive: output %d is not a memory primitive", i)
		}
		if !mpd.Equal(wantOut[i]) {
			g.mu.RUnlock()
			return InvalidHandle, status.Errorf(status.InvalidArgument,
				"primitive: output %d is %s, expected %s", i, mpd.Desc, wantOut[i].Desc)
		}
	}
	g.mu.RUnlock()

	n := &node{
		kind:    KindOperation,
		engine:  e,
		alive:   true,
		desc:    desc,
		inputs:  append([]At(nil), inputs...),
		outputs: append([]Handle(nil), outputs...),
	}
	if !e.IsLazy() {
		if err := g.run(context.Background(), n); err != nil {
			return InvalidHandle, err
		}
	}
	return g.add(n), nil
}

func (g *Graph) add(n *node) Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = append(g.nodes, n)
	return Handle(len(g.nodes) - 1)
}

// lookup returns the live node for h. Callers hold g.mu.
func (g *Graph) lookup(h Handle) (*node, error) {
	if h < 0 || int(h) >= len(g.nodes) {
		return nil, status.Errorf(status.InvalidArgument, "primitive: unknown handle %d", h)
	}
	n := g.nodes[h]
	if !n.alive {
		return nil, status.Errorf(status.InvalidArgument, "primitive: handle %d was destroyed", h)
	}
	return n, nil
}

// slot resolves an output reference to its memory descriptor and storage.
// Callers hold g.mu.
func (g *Graph) slot(at At) (memory.PrimitiveDesc, []float32, error) {
	n, err := g.lookup(at.Primitive)
	if err != nil {
		return memory.PrimitiveDesc{}, nil, err
	}
	switch n.kind {
	case KindMemory:
		if at.Output != 0 {
			return memory.PrimitiveDesc{}, nil, status.Errorf(status.InvalidArgument,
				"primitive: output slot %d out of range for memory primitive %d", at.Output, at.Primitive)
		}
		return n.mpd, n.data, nil
	default:
		if at.Output < 0 || at.Output >= len(n.outputs) {
			return memory.PrimitiveDesc{}, nil, status.Errorf(status.InvalidArgument,
				"primitive: output slot %d out of range for primitive %d with %d outputs",
				at.Output, at.Primitive, len(n.outputs))
		}
		return g.slot(At{Primitive: n.outputs[at.Output]})
	}
}

// run executes an operation node's kernel against the current storage.
func (g *Graph) run(ctx context.Context, n *node) error {
	g.mu.RLock()
	in := make([][]float32, len(n.inputs))
	for i, at := range n.inputs {
		_, data, err := g.slot(at)
		if err != nil {
			g.mu.RUnlock()
			return err
		}
		in[i] = data
	}
	out := make([][]float32, len(n.outputs))
	for i, h := range n.outputs {
		_, data, err := g.slot(At{Primitive: h})
		if err != nil {
			g.mu.RUnlock()
			return err
		}
		out[i] = data
	}
	g.mu.RUnlock()

	klog.V(2).Infof("primitive: executing %s on %s", n.desc.OpKind(), n.engine.Kind())
	return n.desc.Kernel().Execute(ctx, in, out)
}

// Execute runs primitive h. Memory primitives have nothing to run.
// Execution always recomputes from the current producer outputs.
func (g *Graph) Execute(ctx context.Context, h Handle) error {
	g.mu.RLock()
	n, err := g.lookup(h)
	g.mu.RUnlock()
	if err != nil {
		return err
	}
	if n.kind == KindMemory {
		return nil
	}
	return g.run(ctx, n)
}

// Executable adapts primitive h for engine submission.
func (g *Graph) Executable(h Handle) engine.Executable {
	return executable{g: g, h: h}
}

type executable struct {
	g *Graph
	h Handle
}

func (x executable) Execute(ctx context.Context) error {
	return x.g.Execute(ctx, x.h)
}

// Destroy releases primitive h. Owned storage goes back to the pool;
// caller-supplied storage is left untouched.
func (g *Graph) Destroy(h Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.lookup(h)
	if err != nil {
		return err
	}
	n.alive = false
	if n.owned {
		g.pool.Release(n.data)
	}
	n.data = nil
	n.desc = nil
	n.inputs = nil
	n.outputs = nil
	return nil
}

// Kind returns the kind of primitive h.
func (g *Graph) Kind(h Handle) (Kind, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.lookup(h)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// Engine returns the engine primitive h runs on.
func (g *Graph) Engine(h Handle) (*engine.Engine, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.lookup(h)
	if err != nil {
		return nil, err
	}
	return n.engine, nil
}

// IsLazy reports whether primitive h belongs to a lazy engine.
func (g *Graph) IsLazy(h Handle) (bool, error) {
	e, err := g.Engine(h)
	if err != nil {
		return false, err
	}
	return e.IsLazy(), nil
}

// MemoryDesc returns the memory primitive descriptor of output slot at.
func (g *Graph) MemoryDesc(at At) (memory.PrimitiveDesc, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	mpd, _, err := g.slot(at)
	return mpd, err
}

// Data returns the storage behind output slot at.
func (g *Graph) Data(at At) ([]float32, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, data, err := g.slot(at)
	return data, err
}

// Outputs returns the output memory primitives of an operation primitive.
func (g *Graph) Outputs(h Handle) ([]Handle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.lookup(h)
	if err != nil {
		return nil, err
	}
	if n.kind == KindMemory {
		return []Handle{h}, nil
	}
	return append([]Handle(nil), n.outputs...), nil
}
