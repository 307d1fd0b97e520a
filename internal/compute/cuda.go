//go:build cuda

package compute

/*
#cgo CFLAGS: -I/opt/cuda/include
#cgo LDFLAGS: -L/opt/cuda/lib64 -lcudart
#include <cuda_runtime.h>

static int device_count() {
	int n = 0;
	if (cudaGetDeviceCount(&n) != cudaSuccess) return 0;
	return n;
}

static size_t device_mem(int dev, char *name, int len) {
	struct cudaDeviceProp p;
	if (cudaGetDeviceProperties(&p, dev) != cudaSuccess) return 0;
	for (int i = 0; i < len - 1 && p.name[i]; i++) name[i] = p.name[i];
	return p.totalGlobalMem;
}
*/
import "C"

import "unsafe"

// CUDABackend reports the selected GPU and caps device memory at its global
// memory size. Kernels run on the host stream until device kernels are
// registered for the particle interaction set.
type CUDABackend struct {
	*CPUBackend
	available  bool
	deviceName string
}

func NewCUDABackend(limit int64) *CUDABackend {
	count := int(C.device_count())
	if count == 0 {
		return &CUDABackend{CPUBackend: NewCPUBackend(limit, 0)}
	}

	buf := make([]byte, 256)
	total := int64(C.device_mem(0, (*C.char)(unsafe.Pointer(&buf[0])), C.int(len(buf))))
	if limit == 0 || (total > 0 && total < limit) {
		limit = total
	}

	name := C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
	return &CUDABackend{
		CPUBackend: NewCPUBackend(limit, 0),
		available:  true,
		deviceName: name,
	}
}

func (c *CUDABackend) Name() string {
	if c.available {
		return "cuda (" + c.deviceName + ")"
	}
	return "cuda (not available)"
}

func (c *CUDABackend) Available() bool { return c.available }
