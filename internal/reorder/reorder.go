// Package reorder describes layout conversion between two memory primitive
// descriptors of the same tensor.
package reorder

import (
	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/primitive"
	"github.com/born-ml/dnn/internal/status"
)

// Desc is a reorder request from Input's layout to Output's layout.
type Desc struct {
	Input  memory.PrimitiveDesc
	Output memory.PrimitiveDesc
}

// OpKind implements engine.OpDesc.
func (d Desc) OpKind() engine.OpKind { return engine.OpReorder }

// IsIdentity reports whether no conversion is needed. Identity reorders are
// legal; callers normally skip them.
func (d Desc) IsIdentity() bool {
	return d.Input.Equal(d.Output)
}

// PrimitiveDesc is a resolved reorder.
type PrimitiveDesc struct {
	Desc
	engine *engine.Engine
	kernel primitive.Kernel
}

// NewResolved is used by engine resolution functions.
func NewResolved(d Desc, e *engine.Engine, k primitive.Kernel) *PrimitiveDesc {
	return &PrimitiveDesc{Desc: d, engine: e, kernel: k}
}

// OpKind implements engine.PrimitiveDesc.
func (p *PrimitiveDesc) OpKind() engine.OpKind { return engine.OpReorder }

// Engine returns the engine the reorder runs on.
func (p *PrimitiveDesc) Engine() *engine.Engine { return p.engine }

// Inputs implements primitive.Desc.
func (p *PrimitiveDesc) Inputs() []memory.PrimitiveDesc {
	return []memory.PrimitiveDesc{p.Input}
}

// Outputs implements primitive.Desc.
func (p *PrimitiveDesc) Outputs() []memory.PrimitiveDesc {
	return []memory.PrimitiveDesc{p.Output}
}

// Kernel implements primitive.Desc.
func (p *PrimitiveDesc) Kernel() primitive.Kernel { return p.kernel }

// NewPrimitiveDesc resolves a reorder from in to out on their common engine.
func NewPrimitiveDesc(in, out memory.PrimitiveDesc) (*PrimitiveDesc, error) {
	e := in.Engine()
	if e == nil || out.Engine() == nil {
		return nil, status.Errorf(status.InvalidArgument, "reorder: unbound memory primitive descriptor")
	}
	if e != out.Engine() {
		return nil, status.Errorf(status.InvalidArgument, "reorder: input on %s[%d], output on %s[%d]",
			e.Kind(), e.Index(), out.Engine().Kind(), out.Engine().Index())
	}
	if !in.Desc.Tensor.Equal(out.Desc.Tensor) {
		return nil, status.Errorf(status.InvalidArgument, "reorder: tensor %s cannot become %s",
			in.Desc.Tensor, out.Desc.Tensor)
	}
	pd, err := e.Resolve(Desc{Input: in, Output: out})
	if err != nil {
		return nil, err
	}
	rpd, ok := pd.(*PrimitiveDesc)
	if !ok {
		return nil, status.Errorf(status.RuntimeError, "reorder: engine %s returned %T", e.Kind(), pd)
	}
	return rpd, nil
}

// Create instantiates a reorder primitive reading input and writing output.
func Create(g *primitive.Graph, pd *PrimitiveDesc, input primitive.At, output primitive.Handle) (primitive.Handle, error) {
	if pd == nil {
		return primitive.InvalidHandle, status.Errorf(status.InvalidArgument, "reorder: nil primitive descriptor")
	}
	return g.Create(pd, []primitive.At{input}, []primitive.Handle{output})
}
