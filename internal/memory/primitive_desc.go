package memory

import (
	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/status"
)

// PrimitiveDesc is a memory descriptor bound to an engine. Two primitive
// descriptors are interchangeable, i.e. no reorder is needed between them,
// exactly when Equal reports true.
type PrimitiveDesc struct {
	Desc   Desc
	engine *engine.Engine
}

// OpKind implements engine.PrimitiveDesc.
func (p PrimitiveDesc) OpKind() engine.OpKind { return engine.OpMemory }

// Engine returns the engine the descriptor is bound to.
func (p PrimitiveDesc) Engine() *engine.Engine { return p.engine }

// OpKind implements engine.OpDesc so memory binding goes through the
// engine's capability table.
func (d Desc) OpKind() engine.OpKind { return engine.OpMemory }

// NewPrimitiveDesc binds d to e. An unspecified format cannot be bound.
func NewPrimitiveDesc(d Desc, e *engine.Engine) (PrimitiveDesc, error) {
	if e == nil {
		return PrimitiveDesc{}, status.Errorf(status.InvalidArgument, "memory: nil engine")
	}
	if d.IsAny() {
		return PrimitiveDesc{}, status.Errorf(status.InvalidArgument, "memory: cannot bind format any to %s", e.Kind())
	}
	pd, err := e.Resolve(d)
	if err != nil {
		return PrimitiveDesc{}, err
	}
	mpd, ok := pd.(PrimitiveDesc)
	if !ok {
		return PrimitiveDesc{}, status.Errorf(status.RuntimeError, "memory: engine %s returned %T", e.Kind(), pd)
	}
	return mpd, nil
}

// Bind is the memory resolution function engines register for
// engine.OpMemory. Any concrete format is accepted as is.
func Bind(e *engine.Engine, od engine.OpDesc) (engine.PrimitiveDesc, error) {
	d, ok := od.(Desc)
	if !ok {
		return nil, status.Errorf(status.Unimplemented, "memory: unexpected descriptor %T", od)
	}
	if d.IsAny() {
		return nil, status.Errorf(status.InvalidArgument, "memory: cannot bind format any")
	}
	return PrimitiveDesc{Desc: d, engine: e}, nil
}

// Size returns the byte size of the bound layout.
func (p PrimitiveDesc) Size() int {
	return p.Desc.Size()
}

// Equal reports whether both descriptors are bound to the same engine and
// describe the same layout.
func (p PrimitiveDesc) Equal(other PrimitiveDesc) bool {
	return p.engine == other.engine && p.Desc.Equal(other.Desc)
}
