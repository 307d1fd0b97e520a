package compute

// Kernel is one device launch: Run is invoked once per block of at most
// Block consecutive particle indices in [0, N).
type Kernel struct {
	Stage string
	Name  string
	N     int
	Block int
	Run   func(start, end int) error
}

// Backend is the device abstraction. Launches are asynchronous with respect
// to the caller and execute in submission order; Synchronize blocks until the
// queue drains and returns the first failure, which stays sticky.
type Backend interface {
	Name() string
	Available() bool
	Memory() *Memory
	Launch(k Kernel)
	Synchronize() error
	Cleanup()
}

// DefaultBlockSize is used when a kernel carries no tuned block size.
const DefaultBlockSize = 128

// AutoSelectBackend returns the CUDA backend when a device is present,
// otherwise a CPU backend. deviceLimit caps device memory in bytes (0: no cap).
func AutoSelectBackend(deviceLimit int64) Backend {
	cuda := NewCUDABackend(deviceLimit)
	if cuda.Available() {
		return cuda
	}
	if cuda.CPUBackend != nil {
		cuda.Cleanup()
	}
	return NewCPUBackend(deviceLimit, 0)
}
