// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package dnn

import (
	"github.com/born-ml/dnn/internal/cpu"
	"github.com/born-ml/dnn/internal/engine"
	"github.com/born-ml/dnn/internal/webgpu"
)

// Engine is an execution target.
type Engine = engine.Engine

// EngineKind identifies an engine family.
type EngineKind = engine.Kind

// Engine kinds.
const (
	CPU     EngineKind = engine.CPU
	CPULazy EngineKind = engine.CPULazy
	WebGPU  EngineKind = engine.WebGPU
)

// Registry creates engines. Close destroys every engine it created.
type Registry = engine.Registry

// CPUConfig tunes the CPU engines.
type CPUConfig = cpu.Config

// DefaultCPUConfig returns the default CPU configuration.
func DefaultCPUConfig() CPUConfig {
	return cpu.DefaultConfig()
}

type registryOptions struct {
	cpu    CPUConfig
	webgpu bool
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryOptions)

// WithCPUConfig sets the configuration of both CPU engine kinds.
func WithCPUConfig(cfg CPUConfig) RegistryOption {
	return func(o *registryOptions) { o.cpu = cfg }
}

// WithoutWebGPU skips registering the WebGPU engine kind.
func WithoutWebGPU() RegistryOption {
	return func(o *registryOptions) { o.webgpu = false }
}

// NewRegistry returns a registry with the eager CPU, lazy CPU and WebGPU
// engine kinds.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{cpu: cpu.DefaultConfig(), webgpu: true}
	for _, opt := range opts {
		opt(&o)
	}
	factories := []engine.Factory{
		cpu.NewFactory(false, o.cpu),
		cpu.NewFactory(true, o.cpu),
	}
	if o.webgpu {
		factories = append(factories, webgpu.NewFactory())
	}
	return engine.NewRegistry(factories...)
}

// EngineCount returns how many engines of kind r can create.
func EngineCount(r *Registry, kind EngineKind) int {
	return r.Count(kind)
}

// NewEngine creates engine index of kind.
func NewEngine(r *Registry, kind EngineKind, index int) (*Engine, error) {
	return r.Create(kind, index)
}
