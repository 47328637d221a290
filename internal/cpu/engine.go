// Package cpu implements the CPU engines: an eager engine that runs operation
// primitives on creation and a lazy engine that runs them on submission. Both
// share the same resolution functions and kernels.
package cpu

import (
	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"github.com/born-ml/dnn/internal/parallel"
)

// Config controls CPU resolution and kernels.
type Config struct {
	// Parallel configures kernel parallelism.
	Parallel parallel.Config
	// ChannelBlock is the channel block size the direct convolution prefers
	// for unspecified formats. Values below 2 disable blocked layouts.
	ChannelBlock int
}

// DefaultConfig returns the default CPU configuration.
func DefaultConfig() Config {
	return Config{
		Parallel:     parallel.DefaultConfig(),
		ChannelBlock: 8,
	}
}

// Capabilities returns the CPU resolution table.
func Capabilities(cfg Config) engine.Capabilities {
	return engine.Capabilities{
		engine.OpMemory:      {memory.Bind},
		engine.OpReorder:     {reorderInit(cfg)},
		engine.OpConvolution: {directInit(cfg), gemmInit(cfg)},
	}
}

// NewFactory returns the factory for the eager (lazy == false) or lazy CPU
// engine kind. There is exactly one engine of each kind.
func NewFactory(lazy bool, cfg Config) engine.Factory {
	kind := engine.CPU
	if lazy {
		kind = engine.CPULazy
	}
	return engine.NewFactory(kind, func() int { return 1 }, lazy, Capabilities(cfg))
}
