package cpu

import (
	"context"

	"github.com/born-ml/dnn/internal/convolution"
	"github.com/born-ml/dnn/internal/parallel"
)

// directKernel computes a forward convolution straight from the layouts in
// d, so it accepts any concrete format.
type directKernel struct {
	d   convolution.Desc
	cfg parallel.Config
}

func (k *directKernel) Execute(ctx context.Context, in, out [][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := &k.d
	g := d.Geometry()
	src, wei, dst := in[0], in[1], out[0]
	var bias []float32
	if d.HasBias() {
		bias = in[2]
	}

	parallel.ForBatch(g.N, g.OC, func(n, oc int) {
		var si, wi, di [4]int
		var bi [1]int
		b := float32(0)
		if bias != nil {
			bi[0] = oc
			b = bias[d.Bias.Offset(bi[:])]
		}
		for oh := 0; oh < g.OH; oh++ {
			for ow := 0; ow < g.OW; ow++ {
				sum := b
				for ic := 0; ic < g.IC; ic++ {
					for kh := 0; kh < g.KH; kh++ {
						ih, ok := sourceIndex(oh*g.SH-g.PH+kh, g.IH, d.PaddingKind)
						if !ok {
							continue
						}
						for kw := 0; kw < g.KW; kw++ {
							iw, ok := sourceIndex(ow*g.SW-g.PW+kw, g.IW, d.PaddingKind)
							if !ok {
								continue
							}
							si = [4]int{n, ic, ih, iw}
							wi = [4]int{oc, ic, kh, kw}
							sum += src[d.Input.Offset(si[:])] * wei[d.Weights.Offset(wi[:])]
						}
					}
				}
				di = [4]int{n, oc, oh, ow}
				dst[d.Output.Offset(di[:])] = sum
			}
		}
	}, k.cfg)
	return nil
}
