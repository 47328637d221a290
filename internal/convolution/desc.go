// Package convolution describes 2-D convolution operations and resolves them
// against engines.
package convolution

import (
	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/status"
)

// PropKind is the propagation kind of a convolution.
type PropKind int

// Propagation kinds.
const (
	Forward PropKind = iota
	BackwardData
	BackwardWeights
	BackwardBias
)

// String returns the propagation kind name.
func (p PropKind) String() string {
	switch p {
	case Forward:
		return "forward"
	case BackwardData:
		return "backward_data"
	case BackwardWeights:
		return "backward_weights"
	case BackwardBias:
		return "backward_bias"
	default:
		return "unknown"
	}
}

// AlgKind selects the convolution algorithm.
type AlgKind int

// Algorithms.
const (
	Direct AlgKind = iota
	GEMM
)

// String returns the algorithm name.
func (a AlgKind) String() string {
	switch a {
	case Direct:
		return "direct"
	case GEMM:
		return "gemm"
	default:
		return "unknown"
	}
}

// PaddingKind selects how out-of-bounds input positions are read.
type PaddingKind int

// Padding kinds.
const (
	PadZero PaddingKind = iota
	PadReflect
)

// String returns the padding kind name.
func (p PaddingKind) String() string {
	switch p {
	case PadZero:
		return "zero"
	case PadReflect:
		return "reflect"
	default:
		return "unknown"
	}
}

// Desc is an engine-independent convolution descriptor. Any memory
// descriptor may use memory.FormatAny. A zero Bias tensor means no bias.
type Desc struct {
	Prop        PropKind
	Alg         AlgKind
	Input       memory.Desc
	Weights     memory.Desc
	Bias        memory.Desc
	Output      memory.Desc
	Strides     [2]int
	Padding     [2]int
	PaddingKind PaddingKind
}

// OpKind implements engine.OpDesc.
func (d Desc) OpKind() engine.OpKind { return engine.OpConvolution }

// HasBias reports whether the convolution adds a bias.
func (d Desc) HasBias() bool {
	return d.Bias.NDims() > 0
}

// NewDesc creates a convolution descriptor after checking that the shapes,
// strides and padding are consistent.
func NewDesc(prop PropKind, alg AlgKind, input, weights, bias, output memory.Desc,
	strides, padding []int, padKind PaddingKind) (Desc, error) {
	if prop < Forward || prop > BackwardBias {
		return Desc{}, status.Errorf(status.InvalidArgument, "convolution: unknown propagation kind %d", prop)
	}
	if alg < Direct || alg > GEMM {
		return Desc{}, status.Errorf(status.InvalidArgument, "convolution: unknown algorithm %d", alg)
	}
	if padKind < PadZero || padKind > PadReflect {
		return Desc{}, status.Errorf(status.InvalidArgument, "convolution: unknown padding kind %d", padKind)
	}
	if len(strides) != 2 || len(padding) != 2 {
		return Desc{}, status.Errorf(status.InvalidArgument,
			"convolution: need 2 strides and 2 paddings, got %d and %d", len(strides), len(padding))
	}

	d := Desc{
		Prop:        prop,
		Alg:         alg,
		Input:       input,
		Weights:     weights,
		Bias:        bias,
		Output:      output,
		Strides:     [2]int{strides[0], strides[1]},
		Padding:     [2]int{padding[0], padding[1]},
		PaddingKind: padKind,
	}
	if err := d.validate(); err != nil {
		return Desc{}, err
	}
	return d, nil
}

// Geometry holds the extents a kernel iterates over.
type Geometry struct {
	N, IC, IH, IW int
	OC, OH, OW    int
	KH, KW        int
	SH, SW        int
	PH, PW        int
}

// Geometry returns the convolution extents.
func (d Desc) Geometry() Geometry {
	in, w, out := d.Input.Tensor.Dims, d.Weights.Tensor.Dims, d.Output.Tensor.Dims
	return Geometry{
		N: in[0], IC: in[1], IH: in[2], IW: in[3],
		OC: out[1], OH: out[2], OW: out[3],
		KH: w[2], KW: w[3],
		SH: d.Strides[0], SW: d.Strides[1],
		PH: d.Padding[0], PW: d.Padding[1],
	}
}

func isActivation(m memory.Desc) bool {
	t := m.Tensor
	return t.NDimsBatch == 1 && t.NDimsChannels == 1 && t.NDimsSpatial == 2
}

func (d Desc) validate() error {
	names := [3]string{"input", "weights", "output"}
	for i, m := range [3]memory.Desc{d.Input, d.Weights, d.Output} {
		if !isActivation(m) {
			return status.Errorf(status.InvalidArgument,
				"convolution: %s %s must have 1 batch, 1 channel and 2 spatial dimensions", names[i], m.Tensor)
		}
		if m.Tensor.IsEmpty() {
			return status.Errorf(status.InvalidArgument, "convolution: %s %s is empty", names[i], m.Tensor)
		}
	}
	if d.HasBias() {
		t := d.Bias.Tensor
		if t.NDimsBatch != 0 || t.NDimsChannels != 1 || t.NDimsSpatial != 0 {
			return status.Errorf(status.InvalidArgument, "convolution: bias %s must be a single channel dimension", t)
		}
		if t.IsEmpty() {
			return status.Errorf(status.InvalidArgument, "convolution: bias %s is empty", t)
		}
	}

	g := d.Geometry()
	for i := 0; i < 2; i++ {
		if d.Strides[i] < 1 {
			return status.Errorf(status.InvalidArgument, "convolution: stride %d must be positive", d.Strides[i])
		}
		if d.Padding[i] < 0 {
			return status.Errorf(status.InvalidArgument, "convolution: padding %d must not be negative", d.Padding[i])
		}
	}

	switch {
	case d.Output.Tensor.Dims[0] != g.N:
		return status.Errorf(status.InvalidArgument, "convolution: batch %d != output batch %d", g.N, d.Output.Tensor.Dims[0])
	case d.Weights.Tensor.Dims[0] != g.OC:
		return status.Errorf(status.InvalidArgument, "convolution: weights have %d output channels, output has %d",
			d.Weights.Tensor.Dims[0], g.OC)
	case d.Weights.Tensor.Dims[1] != g.IC:
		return status.Errorf(status.InvalidArgument, "convolution: weights have %d input channels, input has %d",
			d.Weights.Tensor.Dims[1], g.IC)
	case d.HasBias() && d.Bias.Tensor.Dims[0] != g.OC:
		return status.Errorf(status.InvalidArgument, "convolution: bias has %d channels, output has %d",
			d.Bias.Tensor.Dims[0], g.OC)
	case g.KH > g.IH+2*g.PH || g.KW > g.IW+2*g.PW:
		return status.Errorf(status.InvalidArgument, "convolution: kernel %dx%d larger than padded input %dx%d",
			g.KH, g.KW, g.IH+2*g.PH, g.IW+2*g.PW)
	}

	oh := (g.IH+2*g.PH-g.KH)/g.SH + 1
	ow := (g.IW+2*g.PW-g.KW)/g.SW + 1
	if oh != g.OH || ow != g.OW {
		return status.Errorf(status.InvalidArgument, "convolution: output spatial %dx%d, expected %dx%d", g.OH, g.OW, oh, ow)
	}
	if d.PaddingKind == PadReflect && (g.PH >= g.IH || g.PW >= g.IW) {
		return status.Errorf(status.InvalidArgument, "convolution: reflect padding %dx%d needs input larger than %dx%d",
			g.PH, g.PW, g.PH, g.PW)
	}
	return nil
}
