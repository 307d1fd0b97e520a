//go:build !cuda

package compute

type CUDABackend struct {
	*CPUBackend
}

func NewCUDABackend(limit int64) *CUDABackend {
	return &CUDABackend{}
}

func (c *CUDABackend) Name() string    { return "cuda (not available)" }
func (c *CUDABackend) Available() bool { return false }
