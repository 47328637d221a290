// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dnn is a primitive library for deep neural network inference.
//
// Operations are described in an engine-independent way, resolved against
// an engine, and instantiated as primitives in a Graph:
//   - TensorDesc: logical shape grouped into batch, channel and spatial dims
//   - MemoryDesc: a tensor plus a physical layout (possibly FormatAny)
//   - ConvolutionDesc / ReorderPrimitiveDesc: operation descriptors
//   - Engine: an execution target obtained from a Registry
//   - Stream: ordered submission and completion of primitives
//
// Layouts left as FormatAny are chosen by the engine during resolution.
// When a resolved layout differs from the caller's data, insert a reorder.
//
// Example:
//
//	reg := dnn.NewRegistry()
//	defer reg.Close()
//	eng, _ := reg.Create(dnn.CPU, 0)
//
//	in, _ := dnn.NewTensorDesc(1, 1, 2, []int{1, 16, 32, 32})
//	...
//	pd, _ := dnn.NewConvolutionPrimitiveDesc(desc, eng)
//	fmt.Println(pd.Input.Format) // blocked (nChw8c)
package dnn
