//go:build !windows

package webgpu

// probe reports no adapters; the wgpu bindings are only wired up on windows.
func probe() int { return 0 }
