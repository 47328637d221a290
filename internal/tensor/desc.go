package tensor

import (
	"fmt"
	"strings"

	"github.com/born-ml/dnn/internal/status"
)

// MaxDims is the maximum number of dimensions a tensor descriptor can hold.
const MaxDims = 12

// Dims is a fixed-capacity array of per-dimension values.
type Dims [MaxDims]int

// Desc describes the shape of an N-dimensional array without saying anything
// about its layout. Dimensions are split into three consecutive groups:
// batch, channel and spatial.
type Desc struct {
	NDimsBatch    int
	NDimsChannels int
	NDimsSpatial  int
	Dims          Dims
}

// NewDesc creates a tensor descriptor. Extents are copied from dims. A zero
// extent yields an empty tensor; layouts and kernels that cannot address one
// reject it themselves.
func NewDesc(batch, channels, spatial int, dims []int) (Desc, error) {
	if batch < 0 || channels < 0 || spatial < 0 {
		return Desc{}, status.Errorf(status.InvalidArgument,
			"tensor: negative dimension group (batch=%d, channels=%d, spatial=%d)", batch, channels, spatial)
	}
	ndims := batch + channels + spatial
	if ndims > MaxDims {
		return Desc{}, status.Errorf(status.InvalidArgument,
			"tensor: %d dimensions exceeds maximum %d", ndims, MaxDims)
	}
	if len(dims) < ndims {
		return Desc{}, status.Errorf(status.InvalidArgument,
			"tensor: %d extents given for %d dimensions", len(dims), ndims)
	}

	d := Desc{
		NDimsBatch:    batch,
		NDimsChannels: channels,
		NDimsSpatial:  spatial,
	}
	for i := 0; i < ndims; i++ {
		if dims[i] < 0 {
			return Desc{}, status.Errorf(status.InvalidArgument,
				"tensor: negative extent at index %d: %d", i, dims[i])
		}
		d.Dims[i] = dims[i]
	}
	return d, nil
}

// NDims returns the total number of dimensions.
func (d Desc) NDims() int {
	return d.NDimsBatch + d.NDimsChannels + d.NDimsSpatial
}

// Extents returns a copy of the first NDims extents.
func (d Desc) Extents() []int {
	out := make([]int, d.NDims())
	copy(out, d.Dims[:d.NDims()])
	return out
}

// NumElements returns the number of logical elements.
func (d Desc) NumElements() int {
	n := 1
	for i := 0; i < d.NDims(); i++ {
		n *= d.Dims[i]
	}
	return n
}

// IsEmpty reports whether some extent is zero.
func (d Desc) IsEmpty() bool {
	return d.NumElements() == 0
}

// Equal reports whether two descriptors have the same groups and extents.
func (d Desc) Equal(other Desc) bool {
	if d.NDimsBatch != other.NDimsBatch ||
		d.NDimsChannels != other.NDimsChannels ||
		d.NDimsSpatial != other.NDimsSpatial {
		return false
	}
	for i := 0; i < d.NDims(); i++ {
		if d.Dims[i] != other.Dims[i] {
			return false
		}
	}
	return true
}

// Validate checks the descriptor invariants for values not built by NewDesc.
func (d Desc) Validate() error {
	_, err := NewDesc(d.NDimsBatch, d.NDimsChannels, d.NDimsSpatial, d.Dims[:])
	return err
}

// String renders the descriptor as e.g. "[1|3|8x8]".
func (d Desc) String() string {
	group := func(from, n int) string {
		parts := make([]string, n)
		for i := 0; i < n; i++ {
			parts[i] = fmt.Sprint(d.Dims[from+i])
		}
		return strings.Join(parts, "x")
	}
	return fmt.Sprintf("[%s|%s|%s]",
		group(0, d.NDimsBatch),
		group(d.NDimsBatch, d.NDimsChannels),
		group(d.NDimsBatch+d.NDimsChannels, d.NDimsSpatial))
}
