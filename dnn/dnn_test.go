// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package dnn_test

import (
	"context"
	"testing"

	"github.com/born-ml/dnn/dnn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *dnn.Registry {
	t.Helper()
	reg := dnn.NewRegistry(dnn.WithoutWebGPU())
	t.Cleanup(reg.Close)
	return reg
}

func TestTensorDesc_Rank(t *testing.T) {
	td, err := dnn.NewTensorDesc(1, 1, 2, []int{1, 3, 8, 8})
	require.NoError(t, err)
	assert.Equal(t, 4, td.NDims())

	dims := make([]int, dnn.MaxDims+1)
	for i := range dims {
		dims[i] = 1
	}
	_, err = dnn.NewTensorDesc(1, 1, dnn.MaxDims-1, dims)
	assert.ErrorIs(t, err, dnn.InvalidArgument)
	assert.Equal(t, dnn.InvalidArgument, dnn.StatusOf(err))
}

func TestMemoryPrimitive_ExternalStorageSurvivesDestroy(t *testing.T) {
	reg := newRegistry(t)
	e, err := dnn.NewEngine(reg, dnn.CPU, 0)
	require.NoError(t, err)

	td, err := dnn.NewTensorDesc(1, 1, 2, []int{1, 3, 8, 8})
	require.NoError(t, err)
	md, err := dnn.NewMemoryDesc(td, dnn.FormatNCHW)
	require.NoError(t, err)
	mpd, err := dnn.NewMemoryPrimitiveDesc(md, e)
	require.NoError(t, err)

	storage := make([]float32, 3*8*8)
	for i := range storage {
		storage[i] = float32(i)
	}
	g := dnn.NewGraph()
	h, err := dnn.CreateMemory(g, mpd, storage)
	require.NoError(t, err)
	require.NoError(t, g.Destroy(h))

	assert.Len(t, storage, 192)
	assert.Equal(t, float32(191), storage[191], "caller storage is untouched")
	assert.Zero(t, g.Pool().Stats().Released)
}

func TestMemoryPrimitiveDesc_Binding(t *testing.T) {
	reg := newRegistry(t)
	e, err := dnn.NewEngine(reg, dnn.CPU, 0)
	require.NoError(t, err)
	td, err := dnn.NewTensorDesc(1, 1, 2, []int{1, 3, 8, 8})
	require.NoError(t, err)

	anyDesc, err := dnn.NewMemoryDesc(td, dnn.FormatAny)
	require.NoError(t, err)
	assert.Zero(t, anyDesc.Size())
	_, err = dnn.NewMemoryPrimitiveDesc(anyDesc, e)
	assert.ErrorIs(t, err, dnn.InvalidArgument)

	for _, f := range []dnn.MemoryFormat{dnn.FormatNCHW, dnn.FormatNHWC} {
		md, err := dnn.NewMemoryDesc(td, f)
		require.NoError(t, err)
		assert.Positive(t, md.Size())
		_, err = dnn.NewMemoryPrimitiveDesc(md, e)
		assert.NoError(t, err)
	}
}

func TestReorder_NCHWToNHWC(t *testing.T) {
	reg := newRegistry(t)
	e, err := dnn.NewEngine(reg, dnn.CPU, 0)
	require.NoError(t, err)
	td, err := dnn.NewTensorDesc(1, 1, 2, []int{1, 3, 8, 8})
	require.NoError(t, err)

	nchw, err := dnn.NewMemoryDesc(td, dnn.FormatNCHW)
	require.NoError(t, err)
	nhwc, err := dnn.NewMemoryDesc(td, dnn.FormatNHWC)
	require.NoError(t, err)
	a, err := dnn.NewMemoryPrimitiveDesc(nchw, e)
	require.NoError(t, err)
	b, err := dnn.NewMemoryPrimitiveDesc(nhwc, e)
	require.NoError(t, err)

	assert.True(t, dnn.MemoryPrimitiveDescEqual(a, a))
	assert.False(t, dnn.MemoryPrimitiveDescEqual(a, b))
	assert.False(t, dnn.MemoryPrimitiveDescEqual(b, a))

	rpd, err := dnn.NewReorderPrimitiveDesc(a, b)
	require.NoError(t, err)
	assert.False(t, rpd.IsIdentity())
}

func TestEngine_CountAndCreate(t *testing.T) {
	reg := newRegistry(t)
	for _, kind := range []dnn.EngineKind{dnn.CPU, dnn.CPULazy} {
		n := dnn.EngineCount(reg, kind)
		require.Equal(t, 1, n)
		_, err := dnn.NewEngine(reg, kind, n)
		assert.ErrorIs(t, err, dnn.InvalidArgument)
	}
	assert.Zero(t, dnn.EngineCount(reg, dnn.WebGPU), "webgpu was not registered")
	_, err := dnn.NewEngine(reg, dnn.WebGPU, 0)
	assert.ErrorIs(t, err, dnn.InvalidArgument)
}

// network holds the user-side buffers of a single convolution.
type network struct {
	src, wei, bias, dst []float32
}

func newNetwork() network {
	n := network{
		src:  make([]float32, 1*16*6*6),
		wei:  make([]float32, 8*16*3*3),
		bias: make([]float32, 8),
		dst:  make([]float32, 1*8*6*6),
	}
	for i := range n.src {
		n.src[i] = float32(i%5) - 2
	}
	for i := range n.wei {
		n.wei[i] = float32(i%3) * 0.5
	}
	for i := range n.bias {
		n.bias[i] = float32(i)
	}
	return n
}

// run builds a padded 3x3 convolution with FormatAny on every operand,
// inserts reorders where the engine chose other layouts and executes it
// through a stream.
func run(t *testing.T, e *dnn.Engine, alg dnn.AlgKind, net network) []dnn.MemoryFormat {
	t.Helper()
	ctx := context.Background()

	tensor := func(b, c, s int, dims ...int) dnn.TensorDesc {
		td, err := dnn.NewTensorDesc(b, c, s, dims)
		require.NoError(t, err)
		return td
	}
	anyOf := func(td dnn.TensorDesc) dnn.MemoryDesc {
		md, err := dnn.NewMemoryDesc(td, dnn.FormatAny)
		require.NoError(t, err)
		return md
	}
	inT, wT, bT, outT := tensor(1, 1, 2, 1, 16, 6, 6), tensor(1, 1, 2, 8, 16, 3, 3), tensor(0, 1, 0, 8), tensor(1, 1, 2, 1, 8, 6, 6)

	cd, err := dnn.NewConvolutionDesc(dnn.Forward, alg, anyOf(inT), anyOf(wT), anyOf(bT), anyOf(outT),
		[]int{1, 1}, []int{1, 1}, dnn.PadZero)
	require.NoError(t, err)
	pd, err := dnn.NewConvolutionPrimitiveDesc(cd, e)
	require.NoError(t, err)

	g := dnn.NewGraph()
	var order []dnn.Handle

	user := func(td dnn.TensorDesc, f dnn.MemoryFormat, data []float32) (dnn.MemoryPrimitiveDesc, dnn.Handle) {
		md, err := dnn.NewMemoryDesc(td, f)
		require.NoError(t, err)
		mpd, err := dnn.NewMemoryPrimitiveDesc(md, e)
		require.NoError(t, err)
		h, err := dnn.CreateMemory(g, mpd, data)
		require.NoError(t, err)
		return mpd, h
	}
	prepare := func(td dnn.TensorDesc, f dnn.MemoryFormat, data []float32, want dnn.MemoryPrimitiveDesc) dnn.Handle {
		mpd, h := user(td, f, data)
		if dnn.MemoryPrimitiveDescEqual(mpd, want) {
			return h
		}
		dst, err := dnn.CreateMemory(g, want, nil)
		require.NoError(t, err)
		rpd, err := dnn.NewReorderPrimitiveDesc(mpd, want)
		require.NoError(t, err)
		r, err := dnn.CreateReorder(g, rpd, dnn.PrimitiveAt(h, 0), dst)
		require.NoError(t, err)
		order = append(order, r)
		return dst
	}

	in := prepare(inT, dnn.FormatNCHW, net.src, pd.InputPD)
	w := prepare(wT, dnn.FormatNCHW, net.wei, pd.WeightsPD)
	b := prepare(bT, dnn.FormatX, net.bias, pd.BiasPD)
	out, err := dnn.CreateMemory(g, pd.OutputPD, nil)
	require.NoError(t, err)
	conv, err := dnn.CreateConvolution(g, pd, dnn.PrimitiveAt(in, 0), w, dnn.PrimitiveAt(b, 0), out)
	require.NoError(t, err)
	order = append(order, conv)

	dstPD, dstH := user(outT, dnn.FormatNCHW, net.dst)
	rpd, err := dnn.NewReorderPrimitiveDesc(pd.OutputPD, dstPD)
	require.NoError(t, err)
	r, err := dnn.CreateReorder(g, rpd, dnn.PrimitiveAt(conv, 0), dstH)
	require.NoError(t, err)
	order = append(order, r)

	s, err := dnn.NewStream(g)
	require.NoError(t, err)
	require.NoError(t, s.Submit(ctx, order))
	require.NoError(t, s.Wait(ctx, true))
	require.NoError(t, s.Destroy())

	return []dnn.MemoryFormat{pd.Input.Format, pd.Weights.Format, pd.Bias.Format, pd.Output.Format}
}

func TestConvolution_EndToEnd(t *testing.T) {
	reg := newRegistry(t)
	eager, err := dnn.NewEngine(reg, dnn.CPU, 0)
	require.NoError(t, err)
	lazy, err := dnn.NewEngine(reg, dnn.CPULazy, 0)
	require.NoError(t, err)

	direct := newNetwork()
	formats := run(t, eager, dnn.ConvolutionDirect, direct)
	assert.Equal(t, []dnn.MemoryFormat{dnn.FormatBlocked, dnn.FormatBlocked, dnn.FormatX, dnn.FormatBlocked}, formats)

	directLazy := newNetwork()
	run(t, lazy, dnn.ConvolutionDirect, directLazy)
	assert.Equal(t, direct.dst, directLazy.dst, "eager and lazy disciplines agree")

	gemm := newNetwork()
	formats = run(t, eager, dnn.ConvolutionGEMM, gemm)
	assert.Equal(t, []dnn.MemoryFormat{dnn.FormatNCHW, dnn.FormatNCHW, dnn.FormatX, dnn.FormatNCHW}, formats)
	require.Len(t, gemm.dst, len(direct.dst))
	for i := range direct.dst {
		assert.InDelta(t, direct.dst[i], gemm.dst[i], 1e-3, "element %d", i)
	}

	// Center output of channel 0 sums the full 3x3x16 window plus bias 0.
	var want float32
	for ic := 0; ic < 16; ic++ {
		for ky := 0; ky < 3; ky++ {
			for kx := 0; kx < 3; kx++ {
				want += direct.src[(ic*6+2+ky)*6+2+kx] * direct.wei[(ic*3+ky)*3+kx]
			}
		}
	}
	assert.InDelta(t, want, direct.dst[3*6+3], 1e-3)
}

func TestConvolution_UnimplementedBackward(t *testing.T) {
	reg := newRegistry(t)
	e, err := dnn.NewEngine(reg, dnn.CPU, 0)
	require.NoError(t, err)

	td := func(b, c, s int, dims ...int) dnn.MemoryDesc {
		tdesc, err := dnn.NewTensorDesc(b, c, s, dims)
		require.NoError(t, err)
		md, err := dnn.NewMemoryDesc(tdesc, dnn.FormatAny)
		require.NoError(t, err)
		return md
	}
	cd, err := dnn.NewConvolutionDesc(dnn.BackwardData, dnn.ConvolutionDirect,
		td(1, 1, 2, 1, 4, 5, 5), td(1, 1, 2, 4, 4, 3, 3), dnn.MemoryDesc{}, td(1, 1, 2, 1, 4, 3, 3),
		[]int{1, 1}, []int{0, 0}, dnn.PadZero)
	require.NoError(t, err)
	_, err = dnn.NewConvolutionPrimitiveDesc(cd, e)
	assert.ErrorIs(t, err, dnn.Unimplemented)
}
