// Package primitive implements the primitive graph: memory primitives that
// hold storage and operation primitives that read producer outputs and write
// into output memory primitives.
package primitive

import (
	"context"
	"fmt"

	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
)

// Handle identifies a primitive in a Graph.
type Handle int

// InvalidHandle is returned alongside errors.
const InvalidHandle Handle = -1

// At references output slot Output of primitive Primitive. Construction does
// no validation; the reference is checked when it is used to create another
// primitive.
type At struct {
	Primitive Handle
	Output    int
}

// AtOutput returns a reference to an output slot of h.
func AtOutput(h Handle, output int) At {
	return At{Primitive: h, Output: output}
}

// Kernel is the computation bound to an operation primitive. in and out hold
// the storage of the input producers and output memory primitives, in
// descriptor order.
type Kernel interface {
	Execute(ctx context.Context, in, out [][]float32) error
}

// KernelFunc adapts a function to the Kernel interface.
type KernelFunc func(ctx context.Context, in, out [][]float32) error

// Execute calls f.
func (f KernelFunc) Execute(ctx context.Context, in, out [][]float32) error {
	return f(ctx, in, out)
}

// Desc is a resolved operation primitive descriptor.
type Desc interface {
	engine.PrimitiveDesc
	Inputs() []memory.PrimitiveDesc
	Outputs() []memory.PrimitiveDesc
	Kernel() Kernel
}

// Kind distinguishes memory and operation primitives.
type Kind int

// Primitive kinds.
const (
	KindMemory Kind = iota
	KindOperation
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindMemory {
		return "memory"
	}
	return "operation"
}

// ExecError reports the primitive whose execution failed.
type ExecError struct {
	Primitive Handle
	Err       error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	return fmt.Sprintf("primitive %d: %v", e.Primitive, e.Err)
}

// Unwrap returns the underlying execution error.
func (e *ExecError) Unwrap() error {
	return e.Err
}
