package convolution

import (
	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/primitive"
	"github.com/born-ml/dnn/internal/status"
	"k8s.io/klog/v2"
)

// PrimitiveDesc is a convolution resolved against an engine. Every memory
// descriptor in it is concrete.
type PrimitiveDesc struct {
	Desc
	InputPD   memory.PrimitiveDesc
	WeightsPD memory.PrimitiveDesc
	BiasPD    memory.PrimitiveDesc
	OutputPD  memory.PrimitiveDesc

	engine *engine.Engine
	kernel primitive.Kernel
}

// Bind binds the concrete descriptor d to e with kernel k. Engine resolution
// functions call it after choosing formats.
func Bind(d Desc, e *engine.Engine, k primitive.Kernel) (*PrimitiveDesc, error) {
	pd := &PrimitiveDesc{Desc: d, engine: e, kernel: k}
	var err error
	if pd.InputPD, err = memory.NewPrimitiveDesc(d.Input, e); err != nil {
		return nil, err
	}
	if pd.WeightsPD, err = memory.NewPrimitiveDesc(d.Weights, e); err != nil {
		return nil, err
	}
	if d.HasBias() {
		if pd.BiasPD, err = memory.NewPrimitiveDesc(d.Bias, e); err != nil {
			return nil, err
		}
	}
	if pd.OutputPD, err = memory.NewPrimitiveDesc(d.Output, e); err != nil {
		return nil, err
	}
	return pd, nil
}

// OpKind implements engine.PrimitiveDesc.
func (p *PrimitiveDesc) OpKind() engine.OpKind { return engine.OpConvolution }

// Engine returns the engine the convolution runs on.
func (p *PrimitiveDesc) Engine() *engine.Engine { return p.engine }

// Inputs returns input, weights and, when present, bias descriptors.
func (p *PrimitiveDesc) Inputs() []memory.PrimitiveDesc {
	if p.HasBias() {
		return []memory.PrimitiveDesc{p.InputPD, p.WeightsPD, p.BiasPD}
	}
	return []memory.PrimitiveDesc{p.InputPD, p.WeightsPD}
}

// Outputs implements primitive.Desc.
func (p *PrimitiveDesc) Outputs() []memory.PrimitiveDesc {
	return []memory.PrimitiveDesc{p.OutputPD}
}

// Kernel implements primitive.Desc.
func (p *PrimitiveDesc) Kernel() primitive.Kernel { return p.kernel }

// NewPrimitiveDesc resolves d on e. Unspecified formats are chosen by the
// engine; concrete formats are kept as given.
func NewPrimitiveDesc(d Desc, e *engine.Engine) (*PrimitiveDesc, error) {
	if e == nil {
		return nil, status.Errorf(status.InvalidArgument, "convolution: nil engine")
	}
	pd, err := e.Resolve(d)
	if err != nil {
		return nil, err
	}
	cpd, ok := pd.(*PrimitiveDesc)
	if !ok {
		return nil, status.Errorf(status.RuntimeError, "convolution: engine %s returned %T", e.Kind(), pd)
	}

	requested := [4]memory.Desc{d.Input, d.Weights, d.Bias, d.Output}
	resolved := [4]memory.Desc{cpd.Input, cpd.Weights, cpd.Bias, cpd.Output}
	for i := range requested {
		if i == 2 && !d.HasBias() {
			continue
		}
		if resolved[i].IsAny() {
			return nil, status.Errorf(status.InvalidArgument, "convolution: %s left format %d unresolved", e.Kind(), i)
		}
		if !requested[i].IsAny() && !requested[i].Equal(resolved[i]) {
			return nil, status.Errorf(status.InvalidArgument, "convolution: %s changed concrete format %s to %s",
				e.Kind(), requested[i], resolved[i])
		}
	}
	if err := cpd.validate(); err != nil {
		return nil, err
	}

	klog.V(1).Infof("convolution: %s/%s on %s: input=%s weights=%s output=%s",
		d.Prop, d.Alg, e.Kind(), cpd.Input, cpd.Weights, cpd.Output)
	return cpd, nil
}

// Create instantiates a convolution primitive. bias is ignored when the
// descriptor has no bias.
func Create(g *primitive.Graph, pd *PrimitiveDesc, input primitive.At, weights primitive.Handle,
	bias primitive.At, output primitive.Handle) (primitive.Handle, error) {
	if pd == nil {
		return primitive.InvalidHandle, status.Errorf(status.InvalidArgument, "convolution: nil primitive descriptor")
	}
	inputs := []primitive.At{input, primitive.AtOutput(weights, 0)}
	if pd.HasBias() {
		inputs = append(inputs, bias)
	}
	return g.Create(pd, inputs, []primitive.Handle{output})
}
