package cpu

import (
	"context"

	"github.com/born-ml/dnn/internal/convolution"
	"github.com/born-ml/dnn/internal/parallel"
	"gonum.org/v1/gonum/mat"
)

// gemmKernel computes a forward convolution on plain layouts using im2col
// followed by a matrix multiply:
//
//	weights [OC, IC*KH*KW] x columns [IC*KH*KW, OH*OW] -> output [OC, OH*OW]
//
// per image.
type gemmKernel struct {
	d   convolution.Desc
	cfg parallel.Config
}

func (k *gemmKernel) Execute(ctx context.Context, in, out [][]float32) error {
	d := &k.d
	g := d.Geometry()
	src, wei, dst := in[0], in[1], out[0]

	rows := g.IC * g.KH * g.KW
	cols := g.OH * g.OW
	weights := mat.NewDense(g.OC, rows, toFloat64(wei[:g.OC*rows]))

	return parallel.ForErr(ctx, g.N, func(_ context.Context, n int) error {
		colBuf := make([]float64, rows*cols)
		im2col(colBuf, src[n*g.IC*g.IH*g.IW:], g, d.PaddingKind)

		var res mat.Dense
		res.Mul(weights, mat.NewDense(rows, cols, colBuf))

		image := dst[n*g.OC*cols : (n+1)*g.OC*cols]
		for oc := 0; oc < g.OC; oc++ {
			b := 0.0
			if d.HasBias() {
				b = float64(in[2][oc])
			}
			row := res.RawRowView(oc)
			for j, v := range row {
				image[oc*cols+j] = float32(v + b)
			}
		}
		return nil
	}, k.cfg)
}

// im2col writes the patches of one NCHW image into colBuf laid out as
// [IC*KH*KW, OH*OW].
func im2col(colBuf []float64, image []float32, g convolution.Geometry, pad convolution.PaddingKind) {
	cols := g.OH * g.OW
	row := 0
	for c := 0; c < g.IC; c++ {
		plane := image[c*g.IH*g.IW:]
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				line := colBuf[row*cols : (row+1)*cols]
				for oh := 0; oh < g.OH; oh++ {
					h, hok := sourceIndex(oh*g.SH-g.PH+kh, g.IH, pad)
					for ow := 0; ow < g.OW; ow++ {
						w, wok := sourceIndex(ow*g.SW-g.PW+kw, g.IW, pad)
						if hok && wok {
							line[oh*g.OW+ow] = float64(plane[h*g.IW+w])
						} else {
							line[oh*g.OW+ow] = 0
						}
					}
				}
				row++
			}
		}
	}
}

func toFloat64(src []float32) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}
