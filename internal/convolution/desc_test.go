package convolution

import (
	"testing"

	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/primitive"
	"github.com/born-ml/dnn/internal/status"
	"github.com/born-ml/dnn/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func act(t *testing.T, f memory.Format, dims ...int) memory.Desc {
	t.Helper()
	td, err := tensor.NewDesc(1, 1, 2, dims)
	require.NoError(t, err)
	d, err := memory.NewDesc(td, f)
	require.NoError(t, err)
	return d
}

func bias(t *testing.T, f memory.Format, n int) memory.Desc {
	t.Helper()
	td, err := tensor.NewDesc(0, 1, 0, []int{n})
	require.NoError(t, err)
	d, err := memory.NewDesc(td, f)
	require.NoError(t, err)
	return d
}

func TestNewDesc(t *testing.T) {
	in := act(t, memory.FormatAny, 2, 3, 8, 8)
	w := act(t, memory.FormatAny, 4, 3, 3, 3)
	b := bias(t, memory.FormatAny, 4)
	out := act(t, memory.FormatAny, 2, 4, 8, 8)

	d, err := NewDesc(Forward, Direct, in, w, b, out, []int{1, 1}, []int{1, 1}, PadZero)
	require.NoError(t, err)
	assert.True(t, d.HasBias())
	assert.Equal(t, engine.OpConvolution, d.OpKind())
	assert.Equal(t, Geometry{N: 2, IC: 3, IH: 8, IW: 8, OC: 4, OH: 8, OW: 8, KH: 3, KW: 3, SH: 1, SW: 1, PH: 1, PW: 1},
		d.Geometry())

	d, err = NewDesc(Forward, GEMM, in, w, memory.Desc{}, out, []int{1, 1}, []int{1, 1}, PadReflect)
	require.NoError(t, err)
	assert.False(t, d.HasBias())
}

func TestNewDesc_Invalid(t *testing.T) {
	in := act(t, memory.FormatAny, 1, 3, 8, 8)
	w := act(t, memory.FormatAny, 4, 3, 3, 3)
	b := bias(t, memory.FormatAny, 4)
	out := act(t, memory.FormatAny, 1, 4, 6, 6)
	flat := bias(t, memory.FormatAny, 3)

	tests := []struct {
		name    string
		in, w   memory.Desc
		b, out  memory.Desc
		strides []int
		padding []int
		kind    PaddingKind
	}{
		{"output spatial", in, w, b, act(t, memory.FormatAny, 1, 4, 8, 8), []int{1, 1}, []int{0, 0}, PadZero},
		{"input rank", flat, w, b, out, []int{1, 1}, []int{0, 0}, PadZero},
		{"weights channels", in, act(t, memory.FormatAny, 4, 2, 3, 3), b, out, []int{1, 1}, []int{0, 0}, PadZero},
		{"output channels", in, w, b, act(t, memory.FormatAny, 1, 5, 6, 6), []int{1, 1}, []int{0, 0}, PadZero},
		{"batch", in, w, b, act(t, memory.FormatAny, 2, 4, 6, 6), []int{1, 1}, []int{0, 0}, PadZero},
		{"bias channels", in, w, bias(t, memory.FormatAny, 5), out, []int{1, 1}, []int{0, 0}, PadZero},
		{"bias rank", in, w, act(t, memory.FormatAny, 1, 4, 1, 1), out, []int{1, 1}, []int{0, 0}, PadZero},
		{"zero stride", in, w, b, out, []int{0, 1}, []int{0, 0}, PadZero},
		{"negative padding", in, w, b, out, []int{1, 1}, []int{-1, 0}, PadZero},
		{"stride count", in, w, b, out, []int{1}, []int{0, 0}, PadZero},
		{"kernel too large", act(t, memory.FormatAny, 1, 3, 2, 2), w, b, out, []int{1, 1}, []int{0, 0}, PadZero},
		{"reflect too wide", act(t, memory.FormatAny, 1, 3, 2, 2), act(t, memory.FormatAny, 4, 3, 1, 1), b,
			act(t, memory.FormatAny, 1, 4, 6, 6), []int{1, 1}, []int{2, 2}, PadReflect},
		{"padding kind", in, w, b, out, []int{1, 1}, []int{0, 0}, PaddingKind(7)},
		{"empty batch", act(t, memory.FormatAny, 0, 3, 8, 8), w, b, act(t, memory.FormatAny, 0, 4, 6, 6),
			[]int{1, 1}, []int{0, 0}, PadZero},
		{"empty kernel", in, act(t, memory.FormatAny, 4, 3, 0, 3), b, act(t, memory.FormatAny, 1, 4, 9, 6),
			[]int{1, 1}, []int{0, 0}, PadZero},
		{"empty bias", in, w, bias(t, memory.FormatAny, 0), out, []int{1, 1}, []int{0, 0}, PadZero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDesc(Forward, Direct, tt.in, tt.w, tt.b, tt.out, tt.strides, tt.padding, tt.kind)
			require.Error(t, err)
			assert.Equal(t, status.InvalidArgument, status.Of(err))
		})
	}

	_, err := NewDesc(PropKind(9), Direct, in, w, b, out, []int{1, 1}, []int{0, 0}, PadZero)
	assert.ErrorIs(t, err, status.InvalidArgument)
	_, err = NewDesc(Forward, AlgKind(9), in, w, b, out, []int{1, 1}, []int{0, 0}, PadZero)
	assert.ErrorIs(t, err, status.InvalidArgument)
}

func TestNewDesc_StridedOutput(t *testing.T) {
	in := act(t, memory.FormatNCHW, 1, 1, 7, 7)
	w := act(t, memory.FormatNCHW, 1, 1, 3, 3)
	out := act(t, memory.FormatNCHW, 1, 1, 3, 3)
	_, err := NewDesc(Forward, Direct, in, w, memory.Desc{}, out, []int{2, 2}, []int{0, 0}, PadZero)
	require.NoError(t, err)
}

// fakeEngine resolves every format to pick and fails for anything but
// forward convolutions.
func fakeEngine(pick func(memory.Desc) memory.Desc) *engine.Engine {
	resolveConv := func(e *engine.Engine, od engine.OpDesc) (engine.PrimitiveDesc, error) {
		d := od.(Desc)
		if d.Prop != Forward {
			return nil, status.Errorf(status.Unimplemented, "fake: %s", d.Prop)
		}
		d.Input, d.Weights, d.Output = pick(d.Input), pick(d.Weights), pick(d.Output)
		if d.HasBias() {
			d.Bias = pick(d.Bias)
		}
		return Bind(d, e, primitive.KernelFunc(nil))
	}
	return engine.New(engine.CPU, 0, false, engine.Capabilities{
		engine.OpMemory:      {memory.Bind},
		engine.OpConvolution: {resolveConv},
	})
}

func toPlain(m memory.Desc) memory.Desc {
	f := memory.FormatNCHW
	if m.NDims() == 1 {
		f = memory.FormatX
	}
	d, _ := memory.NewDesc(m.Tensor, f)
	return d
}

func TestNewPrimitiveDesc(t *testing.T) {
	in := act(t, memory.FormatAny, 1, 3, 8, 8)
	w := act(t, memory.FormatNCHW, 4, 3, 3, 3)
	b := bias(t, memory.FormatAny, 4)
	out := act(t, memory.FormatAny, 1, 4, 6, 6)
	d, err := NewDesc(Forward, Direct, in, w, b, out, []int{1, 1}, []int{0, 0}, PadZero)
	require.NoError(t, err)

	e := fakeEngine(toPlain)
	pd, err := NewPrimitiveDesc(d, e)
	require.NoError(t, err)
	assert.Equal(t, memory.FormatNCHW, pd.Input.Format)
	assert.Equal(t, memory.FormatX, pd.Bias.Format)
	assert.Same(t, e, pd.Engine())
	assert.Same(t, e, pd.InputPD.Engine())
	require.Len(t, pd.Inputs(), 3)
	assert.True(t, pd.Inputs()[1].Equal(pd.WeightsPD))
	require.Len(t, pd.Outputs(), 1)
	assert.True(t, pd.Outputs()[0].Equal(pd.OutputPD))
}

func TestNewPrimitiveDesc_Errors(t *testing.T) {
	in := act(t, memory.FormatNHWC, 1, 3, 8, 8)
	w := act(t, memory.FormatAny, 4, 3, 3, 3)
	out := act(t, memory.FormatAny, 1, 4, 6, 6)
	d, err := NewDesc(Forward, Direct, in, w, memory.Desc{}, out, []int{1, 1}, []int{0, 0}, PadZero)
	require.NoError(t, err)

	_, err = NewPrimitiveDesc(d, nil)
	assert.ErrorIs(t, err, status.InvalidArgument)

	// An engine that rewrites a concrete input format is rejected.
	_, err = NewPrimitiveDesc(d, fakeEngine(toPlain))
	assert.ErrorIs(t, err, status.InvalidArgument)

	// An engine that leaves formats unresolved is rejected.
	_, err = NewPrimitiveDesc(d, fakeEngine(func(m memory.Desc) memory.Desc { return m }))
	assert.ErrorIs(t, err, status.InvalidArgument)

	d.Prop = BackwardWeights
	_, err = NewPrimitiveDesc(d, fakeEngine(toPlain))
	assert.ErrorIs(t, err, status.Unimplemented)

	noConv := engine.New(engine.CPU, 0, false, engine.Capabilities{engine.OpMemory: {memory.Bind}})
	d.Prop = Forward
	_, err = NewPrimitiveDesc(d, noConv)
	assert.ErrorIs(t, err, status.Unimplemented)
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, "gemm", GEMM.String())
	assert.Equal(t, "reflect", PadReflect.String())
}
