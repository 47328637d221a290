// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package dnn

import (
	"github.com/born-ml/dnn/internal/convolution"
	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/primitive"
	"github.com/born-ml/dnn/internal/reorder"
	"github.com/born-ml/dnn/internal/status"
	"github.com/born-ml/dnn/internal/stream"
	"github.com/born-ml/dnn/internal/tensor"
)

// Status is the error vocabulary. Use errors.Is or StatusOf to inspect
// returned errors.
type Status = status.Status

// Status codes.
const (
	Success         Status = status.Success
	InvalidArgument Status = status.InvalidArgument
	OutOfMemory     Status = status.OutOfMemory
	Unimplemented   Status = status.Unimplemented
	RuntimeError    Status = status.RuntimeError
)

// StatusOf returns the status carried by err.
func StatusOf(err error) Status {
	return status.Of(err)
}

// MaxDims is the maximum tensor rank.
const MaxDims = tensor.MaxDims

// TensorDesc is a logical tensor shape.
type TensorDesc = tensor.Desc

// NewTensorDesc creates a tensor descriptor from group sizes and extents.
func NewTensorDesc(batch, channels, spatial int, dims []int) (TensorDesc, error) {
	return tensor.NewDesc(batch, channels, spatial, dims)
}

// MemoryFormat is a physical layout tag.
type MemoryFormat = memory.Format

// Memory formats.
const (
	FormatAny     MemoryFormat = memory.FormatAny
	FormatX       MemoryFormat = memory.FormatX
	FormatNCHW    MemoryFormat = memory.FormatNCHW
	FormatNHWC    MemoryFormat = memory.FormatNHWC
	FormatBlocked MemoryFormat = memory.FormatBlocked
)

// BlockingDesc is a strided, blocked layout.
type BlockingDesc = memory.BlockingDesc

// MemoryDesc is a tensor with a physical layout.
type MemoryDesc = memory.Desc

// NewMemoryDesc creates a memory descriptor in a plain format or FormatAny.
func NewMemoryDesc(t TensorDesc, format MemoryFormat) (MemoryDesc, error) {
	return memory.NewDesc(t, format)
}

// NewBlockedMemoryDesc creates a memory descriptor with an explicit layout.
func NewBlockedMemoryDesc(t TensorDesc, b BlockingDesc) (MemoryDesc, error) {
	return memory.NewBlockedDesc(t, b)
}

// BlockedMemoryDesc creates a blocked layout with the given per-dimension
// block sizes, e.g. {1, 8, 1, 1} for nChw8c.
func BlockedMemoryDesc(t TensorDesc, blocks []int) (MemoryDesc, error) {
	return memory.Blocked(t, blocks)
}

// MemoryPrimitiveDesc is a concrete memory descriptor bound to an engine.
type MemoryPrimitiveDesc = memory.PrimitiveDesc

// NewMemoryPrimitiveDesc binds d to e.
func NewMemoryPrimitiveDesc(d MemoryDesc, e *Engine) (MemoryPrimitiveDesc, error) {
	return memory.NewPrimitiveDesc(d, e)
}

// MemoryPrimitiveDescEqual reports whether a and b describe the same layout
// on the same engine.
func MemoryPrimitiveDescEqual(a, b MemoryPrimitiveDesc) bool {
	return a.Equal(b)
}

// ReorderPrimitiveDesc converts between two layouts of the same tensor.
type ReorderPrimitiveDesc = reorder.PrimitiveDesc

// NewReorderPrimitiveDesc resolves a reorder from in to out.
func NewReorderPrimitiveDesc(in, out MemoryPrimitiveDesc) (*ReorderPrimitiveDesc, error) {
	return reorder.NewPrimitiveDesc(in, out)
}

// Convolution enums.
type (
	PropKind    = convolution.PropKind
	AlgKind     = convolution.AlgKind
	PaddingKind = convolution.PaddingKind
)

// Propagation kinds.
const (
	Forward         PropKind = convolution.Forward
	BackwardData    PropKind = convolution.BackwardData
	BackwardWeights PropKind = convolution.BackwardWeights
	BackwardBias    PropKind = convolution.BackwardBias
)

// Convolution algorithms.
const (
	ConvolutionDirect AlgKind = convolution.Direct
	ConvolutionGEMM   AlgKind = convolution.GEMM
)

// Padding kinds.
const (
	PadZero    PaddingKind = convolution.PadZero
	PadReflect PaddingKind = convolution.PadReflect
)

// ConvolutionDesc is an engine-independent convolution.
type ConvolutionDesc = convolution.Desc

// NewConvolutionDesc creates a convolution descriptor. Pass a zero
// MemoryDesc as bias for a convolution without bias.
func NewConvolutionDesc(prop PropKind, alg AlgKind, input, weights, bias, output MemoryDesc,
	strides, padding []int, padKind PaddingKind) (ConvolutionDesc, error) {
	return convolution.NewDesc(prop, alg, input, weights, bias, output, strides, padding, padKind)
}

// ConvolutionPrimitiveDesc is a convolution resolved against an engine.
type ConvolutionPrimitiveDesc = convolution.PrimitiveDesc

// NewConvolutionPrimitiveDesc resolves d on e, choosing any FormatAny
// layouts.
func NewConvolutionPrimitiveDesc(d ConvolutionDesc, e *Engine) (*ConvolutionPrimitiveDesc, error) {
	return convolution.NewPrimitiveDesc(d, e)
}

// Graph owns primitives.
type Graph = primitive.Graph

// Handle identifies a primitive within a Graph.
type Handle = primitive.Handle

// At references an output slot of a primitive.
type At = primitive.At

// ExecError reports the primitive whose execution failed.
type ExecError = primitive.ExecError

// InvalidHandle is returned alongside errors.
const InvalidHandle = primitive.InvalidHandle

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return primitive.NewGraph()
}

// PrimitiveAt references output slot output of h.
func PrimitiveAt(h Handle, output int) At {
	return primitive.AtOutput(h, output)
}

// CreateMemory creates a memory primitive. With nil data the graph allocates
// zeroed storage.
func CreateMemory(g *Graph, pd MemoryPrimitiveDesc, data []float32) (Handle, error) {
	return g.CreateMemory(pd, data)
}

// CreateReorder creates a reorder primitive.
func CreateReorder(g *Graph, pd *ReorderPrimitiveDesc, input At, output Handle) (Handle, error) {
	return reorder.Create(g, pd, input, output)
}

// CreateConvolution creates a convolution primitive. bias is ignored when pd
// has no bias.
func CreateConvolution(g *Graph, pd *ConvolutionPrimitiveDesc, input At, weights Handle,
	bias At, output Handle) (Handle, error) {
	return convolution.Create(g, pd, input, weights, bias, output)
}

// Stream orders the execution of primitives.
type Stream = stream.Stream

// ErrNotReady is returned by a non-blocking Stream.Wait while work runs.
var ErrNotReady = stream.ErrNotReady

// NewStream creates a stream over g.
func NewStream(g *Graph) (*Stream, error) {
	return stream.New(g)
}

// Compile-time checks.
var (
	_ primitive.Desc = (*ReorderPrimitiveDesc)(nil)
	_ primitive.Desc = (*ConvolutionPrimitiveDesc)(nil)
	_ engine.OpDesc  = ConvolutionDesc{}
)
