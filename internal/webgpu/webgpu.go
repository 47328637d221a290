// Package webgpu registers the WebGPU engine kind. Adapters are probed
// through wgpu; the engine currently resolves memory primitives only, so
// reorders and convolutions on it report Unimplemented.
package webgpu

import (
	"sync"

	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/memory"
	"k8s.io/klog/v2"
)

var (
	probeOnce sync.Once
	adapters  int
)

// Count returns the number of usable adapters. The probe runs once per
// process.
func Count() int {
	probeOnce.Do(func() {
		adapters = probe()
		klog.V(1).Infof("webgpu: %d adapter(s) available", adapters)
	})
	return adapters
}

// Capabilities returns the WebGPU capability table.
func Capabilities() engine.Capabilities {
	return engine.Capabilities{
		engine.OpMemory: {memory.Bind},
	}
}

// NewFactory returns the WebGPU engine factory.
func NewFactory() engine.Factory {
	return engine.NewFactory(engine.WebGPU, Count, false, Capabilities())
}
