// Package main provides the dnn CLI. It resolves a single convolution on the
// chosen engine, reorders user data into the chosen layouts and runs it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/born-ml/dnn/dnn"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

type options struct {
	engine  string
	alg     string
	reflect bool
	n, ic   int
	h, w    int
	oc, k   int
	stride  int
	pad     int
	workers int
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("dnn %s\n", version)
		return
	}

	klog.InitFlags(nil)
	var o options
	flag.StringVar(&o.engine, "engine", "cpu", "engine kind: cpu, cpu_lazy or webgpu")
	flag.StringVar(&o.alg, "alg", "direct", "convolution algorithm: direct or gemm")
	flag.BoolVar(&o.reflect, "reflect", false, "use reflect padding instead of zero padding")
	flag.IntVar(&o.n, "n", 1, "batch size")
	flag.IntVar(&o.ic, "ic", 16, "input channels")
	flag.IntVar(&o.h, "h", 32, "input height")
	flag.IntVar(&o.w, "w", 32, "input width")
	flag.IntVar(&o.oc, "oc", 16, "output channels")
	flag.IntVar(&o.k, "k", 3, "kernel size")
	flag.IntVar(&o.stride, "stride", 1, "stride")
	flag.IntVar(&o.pad, "pad", 1, "padding")
	flag.IntVar(&o.workers, "workers", 0, "CPU worker count (0 = GOMAXPROCS)")
	flag.Parse()
	defer klog.Flush()

	if err := run(context.Background(), o); err != nil {
		fmt.Fprintf(os.Stderr, "dnn: %v\n", err)
		os.Exit(1)
	}
}

func parseKind(s string) (dnn.EngineKind, error) {
	for _, k := range []dnn.EngineKind{dnn.CPU, dnn.CPULazy, dnn.WebGPU} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown engine %q", s)
}

func parseAlg(s string) (dnn.AlgKind, error) {
	switch s {
	case "direct":
		return dnn.ConvolutionDirect, nil
	case "gemm":
		return dnn.ConvolutionGEMM, nil
	}
	return 0, errors.Errorf("unknown algorithm %q", s)
}

func run(ctx context.Context, o options) error {
	kind, err := parseKind(o.engine)
	if err != nil {
		return err
	}
	alg, err := parseAlg(o.alg)
	if err != nil {
		return err
	}
	padKind := dnn.PadZero
	if o.reflect {
		padKind = dnn.PadReflect
	}

	cfg := dnn.DefaultCPUConfig()
	if o.workers > 0 {
		cfg.Parallel.NumWorkers = o.workers
	}
	reg := dnn.NewRegistry(dnn.WithCPUConfig(cfg))
	defer reg.Close()

	fmt.Printf("engines: cpu=%d cpu_lazy=%d webgpu=%d\n",
		dnn.EngineCount(reg, dnn.CPU), dnn.EngineCount(reg, dnn.CPULazy), dnn.EngineCount(reg, dnn.WebGPU))
	e, err := dnn.NewEngine(reg, kind, 0)
	if err != nil {
		return err
	}

	oh := (o.h+2*o.pad-o.k)/o.stride + 1
	ow := (o.w+2*o.pad-o.k)/o.stride + 1
	shapes := []struct {
		b, c, s int
		dims    []int
	}{
		{1, 1, 2, []int{o.n, o.ic, o.h, o.w}},
		{1, 1, 2, []int{o.oc, o.ic, o.k, o.k}},
		{0, 1, 0, []int{o.oc}},
		{1, 1, 2, []int{o.n, o.oc, oh, ow}},
	}
	tensors := make([]dnn.TensorDesc, len(shapes))
	anys := make([]dnn.MemoryDesc, len(shapes))
	for i, s := range shapes {
		if tensors[i], err = dnn.NewTensorDesc(s.b, s.c, s.s, s.dims); err != nil {
			return err
		}
		if anys[i], err = dnn.NewMemoryDesc(tensors[i], dnn.FormatAny); err != nil {
			return err
		}
	}

	cd, err := dnn.NewConvolutionDesc(dnn.Forward, alg, anys[0], anys[1], anys[2], anys[3],
		[]int{o.stride, o.stride}, []int{o.pad, o.pad}, padKind)
	if err != nil {
		return err
	}
	pd, err := dnn.NewConvolutionPrimitiveDesc(cd, e)
	if err != nil {
		return err
	}
	fmt.Printf("resolved on %s: input=%s weights=%s bias=%s output=%s\n",
		kind, pd.Input, pd.Weights, pd.Bias, pd.Output)

	b := builder{g: dnn.NewGraph(), e: e}
	in := b.feed(tensors[0], dnn.FormatNCHW, fill(tensors[0].NumElements(), 0.01), pd.InputPD)
	w := b.feed(tensors[1], dnn.FormatNCHW, fill(tensors[1].NumElements(), 0.001), pd.WeightsPD)
	bias := b.feed(tensors[2], dnn.FormatX, fill(tensors[2].NumElements(), 0.1), pd.BiasPD)
	out := b.memory(pd.OutputPD, nil)
	conv := b.add(func() (dnn.Handle, error) {
		return dnn.CreateConvolution(b.g, pd, dnn.PrimitiveAt(in, 0), w, dnn.PrimitiveAt(bias, 0), out)
	})

	result := make([]float32, tensors[3].NumElements())
	b.fetch(tensors[3], conv, pd.OutputPD, result)
	if b.err != nil {
		return b.err
	}

	s, err := dnn.NewStream(b.g)
	if err != nil {
		return err
	}
	if err := s.Submit(ctx, b.order); err != nil {
		return err
	}
	if err := s.Wait(ctx, true); err != nil {
		return err
	}
	if err := s.Destroy(); err != nil {
		return err
	}

	var sum float64
	for _, v := range result {
		sum += float64(v)
	}
	fmt.Printf("ran %d primitives, output %v, checksum %.6f\n", len(b.order), shapes[3].dims, sum)
	return nil
}

func fill(n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%13-6) * scale
	}
	return out
}

// builder records primitives in execution order and keeps the first error.
type builder struct {
	g     *dnn.Graph
	e     *dnn.Engine
	order []dnn.Handle
	err   error
}

func (b *builder) memory(pd dnn.MemoryPrimitiveDesc, data []float32) dnn.Handle {
	if b.err != nil {
		return dnn.InvalidHandle
	}
	h, err := dnn.CreateMemory(b.g, pd, data)
	b.err = err
	return h
}

func (b *builder) add(create func() (dnn.Handle, error)) dnn.Handle {
	if b.err != nil {
		return dnn.InvalidHandle
	}
	h, err := create()
	if err != nil {
		b.err = err
		return dnn.InvalidHandle
	}
	b.order = append(b.order, h)
	return h
}

func (b *builder) plain(t dnn.TensorDesc, f dnn.MemoryFormat) dnn.MemoryPrimitiveDesc {
	if b.err != nil {
		return dnn.MemoryPrimitiveDesc{}
	}
	md, err := dnn.NewMemoryDesc(t, f)
	if err != nil {
		b.err = err
		return dnn.MemoryPrimitiveDesc{}
	}
	mpd, err := dnn.NewMemoryPrimitiveDesc(md, b.e)
	b.err = err
	return mpd
}

func (b *builder) reorder(from dnn.MemoryPrimitiveDesc, src dnn.Handle, to dnn.MemoryPrimitiveDesc, dst dnn.Handle) {
	b.add(func() (dnn.Handle, error) {
		rpd, err := dnn.NewReorderPrimitiveDesc(from, to)
		if err != nil {
			return dnn.InvalidHandle, err
		}
		klog.V(1).Infof("inserting reorder %s -> %s", from.Desc.Format, to.Desc.Format)
		return dnn.CreateReorder(b.g, rpd, dnn.PrimitiveAt(src, 0), dst)
	})
}

// feed wraps user data in a plain layout and reorders it into want when the
// layouts differ.
func (b *builder) feed(t dnn.TensorDesc, f dnn.MemoryFormat, data []float32, want dnn.MemoryPrimitiveDesc) dnn.Handle {
	user := b.plain(t, f)
	h := b.memory(user, data)
	if b.err != nil || dnn.MemoryPrimitiveDescEqual(user, want) {
		return h
	}
	dst := b.memory(want, nil)
	b.reorder(user, h, want, dst)
	return dst
}

// fetch reorders the output of src into result in NCHW.
func (b *builder) fetch(t dnn.TensorDesc, src dnn.Handle, have dnn.MemoryPrimitiveDesc, result []float32) {
	user := b.plain(t, dnn.FormatNCHW)
	h := b.memory(user, result)
	if b.err != nil {
		return
	}
	b.reorder(have, src, user, h)
}
