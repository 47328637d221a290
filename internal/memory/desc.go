// Package memory implements the memory layout model: memory format
// descriptors, blocking descriptors and memory primitive descriptors.
package memory

import (
	"fmt"

	"github.com/born-ml/dnn/internal/status"
	"github.com/born-ml/dnn/internal/tensor"
)

// ElementSize is the byte size of one element. All formats hold float32.
const ElementSize = 4

// Format is the physical layout tag of a memory descriptor.
type Format int

// Supported formats.
const (
	FormatAny Format = iota // unspecified, chosen by the engine
	FormatX                 // flat 1-D
	FormatNCHW
	FormatNHWC
	FormatBlocked // explicit blocking descriptor
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatAny:
		return "any"
	case FormatX:
		return "x"
	case FormatNCHW:
		return "nchw"
	case FormatNHWC:
		return "nhwc"
	case FormatBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// BlockingDesc describes a concrete strided and blocked layout.
//
// Element (i0, ..., in) lives at
//
//	OffsetPadding + sum_d (i_d / BlockDims[d]) * OuterStrides[d] + (i_d % BlockDims[d]) * InnerStrides[d]
type BlockingDesc struct {
	BlockDims           tensor.Dims
	OuterStrides        tensor.Dims
	InnerStrides        tensor.Dims
	PaddingDims         tensor.Dims
	OffsetPadding       int
	OffsetPaddingToData int
}

// Equal compares the first ndims entries of every array and both offsets.
func (b BlockingDesc) Equal(other BlockingDesc, ndims int) bool {
	if b.OffsetPadding != other.OffsetPadding || b.OffsetPaddingToData != other.OffsetPaddingToData {
		return false
	}
	for d := 0; d < ndims; d++ {
		if b.BlockDims[d] != other.BlockDims[d] ||
			b.OuterStrides[d] != other.OuterStrides[d] ||
			b.InnerStrides[d] != other.InnerStrides[d] ||
			b.PaddingDims[d] != other.PaddingDims[d] {
			return false
		}
	}
	return true
}

// Desc is a tensor descriptor plus a physical layout.
type Desc struct {
	Tensor   tensor.Desc
	Format   Format
	Blocking BlockingDesc
}

// NewDesc creates a memory descriptor. For concrete formats the canonical
// blocking is derived from the tensor shape; FormatBlocked has no canonical
// layout and must be built with NewBlockedDesc or Blocked.
func NewDesc(t tensor.Desc, format Format) (Desc, error) {
	if err := t.Validate(); err != nil {
		return Desc{}, err
	}
	d := Desc{Tensor: t, Format: format}
	ndims := t.NDims()

	switch format {
	case FormatAny:
		return d, nil
	case FormatX:
		if ndims != 1 {
			return Desc{}, status.Errorf(status.InvalidArgument, "memory: format x needs 1 dimension, got %d", ndims)
		}
		d.Blocking = plainBlocking(t, []int{0})
	case FormatNCHW:
		if ndims != 4 {
			return Desc{}, status.Errorf(status.InvalidArgument, "memory: format nchw needs 4 dimensions, got %d", ndims)
		}
		d.Blocking = plainBlocking(t, []int{0, 1, 2, 3})
	case FormatNHWC:
		if ndims != 4 {
			return Desc{}, status.Errorf(status.InvalidArgument, "memory: format nhwc needs 4 dimensions, got %d", ndims)
		}
		d.Blocking = plainBlocking(t, []int{0, 2, 3, 1})
	case FormatBlocked:
		return Desc{}, status.Errorf(status.InvalidArgument, "memory: blocked format requires an explicit blocking descriptor")
	default:
		return Desc{}, status.Errorf(status.InvalidArgument, "memory: unknown format %d", format)
	}
	return d, nil
}

// plainBlocking builds an unblocked layout where order lists dimensions from
// outermost to innermost.
func plainBlocking(t tensor.Desc, order []int) BlockingDesc {
	var b BlockingDesc
	stride := 1
	for i := len(order) - 1; i >= 0; i-- {
		d := order[i]
		b.BlockDims[d] = 1
		b.InnerStrides[d] = 1
		b.PaddingDims[d] = t.Dims[d]
		b.OuterStrides[d] = stride
		stride *= t.Dims[d]
	}
	return b
}

// Blocked builds the canonical blocked layout for per-dimension block sizes.
// Dimensions are padded up to a multiple of their block. Blocks are laid out
// row-major over the block counts, and inside a block dimension 0 is
// innermost (e.g. blocks {1, 8, 1, 1} is nChw8c, {8, 8, 1, 1} is OIhw8i8o).
func Blocked(t tensor.Desc, blocks []int) (Desc, error) {
	if err := t.Validate(); err != nil {
		return Desc{}, err
	}
	if t.IsEmpty() {
		return Desc{}, status.Errorf(status.InvalidArgument, "memory: cannot block empty tensor %s", t)
	}
	ndims := t.NDims()
	if len(blocks) != ndims {
		return Desc{}, status.Errorf(status.InvalidArgument, "memory: %d block sizes for %d dimensions", len(blocks), ndims)
	}

	var b BlockingDesc
	inner := 1
	for d := 0; d < ndims; d++ {
		if blocks[d] < 1 {
			return Desc{}, status.Errorf(status.InvalidArgument, "memory: invalid block size %d at dimension %d", blocks[d], d)
		}
		b.BlockDims[d] = blocks[d]
		b.PaddingDims[d] = roundUp(t.Dims[d], blocks[d])
		b.InnerStrides[d] = inner
		inner *= blocks[d]
	}
	outer := inner
	for d := ndims - 1; d >= 0; d-- {
		b.OuterStrides[d] = outer
		outer *= b.PaddingDims[d] / b.BlockDims[d]
	}
	return NewBlockedDesc(t, b)
}

// NewBlockedDesc creates a FormatBlocked descriptor from an explicit layout.
func NewBlockedDesc(t tensor.Desc, b BlockingDesc) (Desc, error) {
	if err := t.Validate(); err != nil {
		return Desc{}, err
	}
	if t.IsEmpty() {
		return Desc{}, status.Errorf(status.InvalidArgument, "memory: cannot block empty tensor %s", t)
	}
	if b.OffsetPadding < 0 || b.OffsetPaddingToData < 0 {
		return Desc{}, status.Errorf(status.InvalidArgument, "memory: negative blocking offset")
	}
	for d := 0; d < t.NDims(); d++ {
		switch {
		case b.BlockDims[d] < 1:
			return Desc{}, status.Errorf(status.InvalidArgument, "memory: invalid block size %d at dimension %d", b.BlockDims[d], d)
		case b.PaddingDims[d] < t.Dims[d]:
			return Desc{}, status.Errorf(status.InvalidArgument, "memory: padded extent %d smaller than extent %d at dimension %d",
				b.PaddingDims[d], t.Dims[d], d)
		case b.PaddingDims[d]%b.BlockDims[d] != 0:
			return Desc{}, status.Errorf(status.InvalidArgument, "memory: padded extent %d not a multiple of block %d at dimension %d",
				b.PaddingDims[d], b.BlockDims[d], d)
		case b.OuterStrides[d] < 1 || b.InnerStrides[d] < 1:
			return Desc{}, status.Errorf(status.InvalidArgument, "memory: non-positive stride at dimension %d", d)
		}
	}
	return Desc{Tensor: t, Format: FormatBlocked, Blocking: b}, nil
}

func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}

// NDims returns the number of tensor dimensions.
func (d Desc) NDims() int {
	return d.Tensor.NDims()
}

// IsAny reports whether the format is still unspecified.
func (d Desc) IsAny() bool {
	return d.Format == FormatAny
}

// Equal compares tensor, format and, for FormatBlocked only, blocking.
func (d Desc) Equal(other Desc) bool {
	if !d.Tensor.Equal(other.Tensor) || d.Format != other.Format {
		return false
	}
	if d.Format == FormatBlocked {
		return d.Blocking.Equal(other.Blocking, d.NDims())
	}
	return true
}

// Size returns the byte size of the layout, or 0 for FormatAny and empty
// tensors.
//
// The formula reproduces the established contract and is known to be
// incomplete for padded blocked layouts: it divides the logical extent, not
// the padded one, by the block size. Use Span to size storage.
func (d Desc) Size() int {
	if d.Format == FormatAny || d.Tensor.IsEmpty() {
		return 0
	}
	maxSize := 0
	b := d.Blocking
	for i := 0; i < d.NDims(); i++ {
		maxSize = max(maxSize, d.Tensor.Dims[i]/b.BlockDims[i]*b.OuterStrides[i])
		if b.BlockDims[i] != 1 {
			maxSize = max(maxSize, b.BlockDims[i]*b.InnerStrides[i])
		}
	}
	return maxSize * ElementSize
}

// Offset returns the element offset of a logical index.
func (d Desc) Offset(idx []int) int {
	b := &d.Blocking
	off := b.OffsetPadding
	for i, v := range idx {
		off += v/b.BlockDims[i]*b.OuterStrides[i] + v%b.BlockDims[i]*b.InnerStrides[i]
	}
	return off
}

// Span returns the number of elements the layout can address, including
// padding. It is 0 for FormatAny and empty tensors.
func (d Desc) Span() int {
	if d.Format == FormatAny || d.Tensor.IsEmpty() {
		return 0
	}
	b := &d.Blocking
	last := b.OffsetPadding
	for i := 0; i < d.NDims(); i++ {
		last += (b.PaddingDims[i]/b.BlockDims[i]-1)*b.OuterStrides[i] + (b.BlockDims[i]-1)*b.InnerStrides[i]
	}
	return last + 1
}

// StorageSize returns the number of elements to allocate for the layout.
func (d Desc) StorageSize() int {
	return max(d.Span(), (d.Size()+ElementSize-1)/ElementSize)
}

// String renders the descriptor as e.g. "nchw[1|3|8x8]".
func (d Desc) String() string {
	if d.Format != FormatBlocked {
		return fmt.Sprintf("%s%s", d.Format, d.Tensor)
	}
	return fmt.Sprintf("blocked%v%s", d.Blocking.BlockDims[:d.NDims()], d.Tensor)
}
