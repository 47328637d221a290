package cpu

import (
	"github.com/born-ml/dnn/internal/convolution"
	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/status"
)

func convDesc(od engine.OpDesc) (convolution.Desc, error) {
	d, ok := od.(convolution.Desc)
	if !ok {
		return convolution.Desc{}, status.Errorf(status.Unimplemented, "cpu: unexpected convolution descriptor %T", od)
	}
	if d.Prop != convolution.Forward {
		return convolution.Desc{}, status.Errorf(status.Unimplemented, "cpu: convolution %s is not implemented", d.Prop)
	}
	return d, nil
}

// resolve replaces an unspecified format with the one produced by pick.
func resolve(m *memory.Desc, pick func() (memory.Desc, error)) error {
	if !m.IsAny() {
		return nil
	}
	r, err := pick()
	if err != nil {
		return err
	}
	*m = r
	return nil
}

func plain(m memory.Desc) func() (memory.Desc, error) {
	return func() (memory.Desc, error) {
		if m.NDims() == 1 {
			return memory.NewDesc(m.Tensor, memory.FormatX)
		}
		return memory.NewDesc(m.Tensor, memory.FormatNCHW)
	}
}

// directInit resolves convolutions for the direct kernel. Activations with a
// channel count divisible by the channel block use nChw{B}c; weights whose
// input and output channel counts both divide use OIhw{B}i{B}o.
func directInit(cfg Config) engine.InitFunc {
	return func(e *engine.Engine, od engine.OpDesc) (engine.PrimitiveDesc, error) {
		d, err := convDesc(od)
		if err != nil {
			return nil, err
		}
		if d.Alg != convolution.Direct {
			return nil, status.Errorf(status.Unimplemented, "cpu: direct kernel cannot run %s", d.Alg)
		}

		g := d.Geometry()
		blk := cfg.ChannelBlock
		blockedOK := func(channels int) bool { return blk > 1 && channels%blk == 0 }
		activation := func(m memory.Desc, channels int) func() (memory.Desc, error) {
			if !blockedOK(channels) {
				return plain(m)
			}
			return func() (memory.Desc, error) { return memory.Blocked(m.Tensor, []int{1, blk, 1, 1}) }
		}
		weights := plain(d.Weights)
		if blockedOK(g.OC) && blockedOK(g.IC) {
			weights = func() (memory.Desc, error) { return memory.Blocked(d.Weights.Tensor, []int{blk, blk, 1, 1}) }
		}

		if err := resolve(&d.Input, activation(d.Input, g.IC)); err != nil {
			return nil, err
		}
		if err := resolve(&d.Output, activation(d.Output, g.OC)); err != nil {
			return nil, err
		}
		if err := resolve(&d.Weights, weights); err != nil {
			return nil, err
		}
		if d.HasBias() {
			if err := resolve(&d.Bias, plain(d.Bias)); err != nil {
				return nil, err
			}
		}
		return convolution.Bind(d, e, &directKernel{d: d, cfg: cfg.Parallel})
	}
}

// gemmInit resolves convolutions for the im2col + matrix multiply kernel,
// which only reads plain layouts.
func gemmInit(cfg Config) engine.InitFunc {
	return func(e *engine.Engine, od engine.OpDesc) (engine.PrimitiveDesc, error) {
		d, err := convDesc(od)
		if err != nil {
			return nil, err
		}
		if d.Alg != convolution.GEMM {
			return nil, status.Errorf(status.Unimplemented, "cpu: gemm kernel cannot run %s", d.Alg)
		}

		for _, m := range []*memory.Desc{&d.Input, &d.Weights, &d.Output} {
			if err := resolve(m, plain(*m)); err != nil {
				return nil, err
			}
			if m.Format != memory.FormatNCHW {
				return nil, status.Errorf(status.Unimplemented, "cpu: gemm kernel needs nchw, got %s", m.Format)
			}
		}
		if d.HasBias() {
			if err := resolve(&d.Bias, plain(d.Bias)); err != nil {
				return nil, err
			}
			if d.Bias.Format != memory.FormatX {
				return nil, status.Errorf(status.Unimplemented, "cpu: gemm kernel needs x bias, got %s", d.Bias.Format)
			}
		}
		return convolution.Bind(d, e, &gemmKernel{d: d, cfg: cfg.Parallel})
	}
}

// sourceIndex maps a padded coordinate to an input coordinate. ok is false
// for zero padding outside the input.
func sourceIndex(i, n int, kind convolution.PaddingKind) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	if kind != convolution.PadReflect {
		return 0, false
	}
	if i < 0 {
		return -i, true
	}
	return 2*n - 2 - i, true
}
