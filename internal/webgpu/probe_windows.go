//go:build windows

package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"
	"k8s.io/klog/v2"
)

// probe requests the default adapter. A missing wgpu_native library panics
// inside the bindings, which counts as no adapter.
func probe() (n int) {
	defer func() {
		if r := recover(); r != nil {
			klog.V(1).Infof("webgpu: probe failed: %v", r)
			n = 0
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		klog.V(1).Infof("webgpu: no adapter: %v", err)
		return 0
	}
	adapter.Release()
	return 1
}
