package cpu

import (
	"context"

	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/parallel"
	"github.com/born-ml/dnn/internal/primitive"
	"github.com/born-ml/dnn/internal/reorder"
	"github.com/born-ml/dnn/internal/status"
)

func reorderInit(cfg Config) engine.InitFunc {
	return func(e *engine.Engine, od engine.OpDesc) (engine.PrimitiveDesc, error) {
		d, ok := od.(reorder.Desc)
		if !ok {
			return nil, status.Errorf(status.Unimplemented, "cpu: unexpected reorder descriptor %T", od)
		}
		k := &reorderKernel{in: d.Input.Desc, out: d.Output.Desc, cfg: cfg.Parallel}
		return reorder.NewResolved(d, e, k), nil
	}
}

type reorderKernel struct {
	in, out memory.Desc
	cfg     parallel.Config
}

func (k *reorderKernel) Execute(ctx context.Context, in, out [][]float32) error {
	src, dst := in[0], out[0]
	if k.in.Equal(k.out) {
		copy(dst, src[:k.in.Span()])
		return nil
	}

	dims := k.in.Tensor.Extents()
	outer := dims[0]
	return parallel.ForErr(ctx, outer, func(_ context.Context, i int) error {
		idx := make([]int, len(dims))
		idx[0] = i
		forEachIndex(dims, idx, 1, func(idx []int) {
			dst[k.out.Offset(idx)] = src[k.in.Offset(idx)]
		})
		return nil
	}, k.cfg)
}

// forEachIndex visits every logical index whose leading `from` coordinates
// are fixed in idx.
func forEachIndex(dims, idx []int, from int, f func(idx []int)) {
	if from == len(dims) {
		f(idx)
		return
	}
	for i := 0; i < dims[from]; i++ {
		idx[from] = i
		forEachIndex(dims, idx, from+1, f)
	}
}

var _ primitive.Kernel = (*reorderKernel)(nil)
