// Package compute provides the device layer of the execution core.
//
//   - [Backend]: asynchronous kernel stream with sticky errors
//   - [CPUBackend]: goroutine implementation, blocks scheduled on an errgroup
//   - [CUDABackend]: GPU discovery, built with the cuda tag
//   - [Memory]: byte accounting with an optional limit per side
//   - [Buffer]: typed allocation with kind tag, capacity and live length
//   - [Runtime]: per-run context (device, host memory, logger, timers)
//
// # Launch and synchronize
//
// Launches return immediately. The host must call Synchronize before it
// reads anything a kernel wrote:
//
//	rt.Device.Launch(compute.Kernel{Stage: "forces", Name: "fluid", N: np, Block: 128, Run: body})
//	if err := rt.Device.Synchronize(); err != nil {
//	    return err
//	}
//
// Build with CUDA discovery:
//
//	go build -tags cuda ./...
package compute
