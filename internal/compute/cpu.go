package compute

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/san-kum/dynsph/internal/dynamo"
	"golang.org/x/sync/errgroup"
)

// Device error codes reported by the CPU backend.
const (
	CodeKernelFailed  = 700
	CodeKernelPanic   = 719
	CodeStreamStopped = 4
)

// CPUBackend executes kernels on goroutines. Launches are queued on a single
// stream goroutine so kernels run strictly in order; blocks of one kernel run
// concurrently on at most workers goroutines.
type CPUBackend struct {
	workers int
	mem     *Memory

	queue   chan Kernel
	pending sync.WaitGroup

	lifecycle sync.RWMutex
	closed    bool

	mu  sync.Mutex
	err error
}

// NewCPUBackend creates a backend whose device memory is capped at limit
// bytes (0: no cap). workers <= 0 uses runtime.NumCPU.
func NewCPUBackend(limit int64, workers int) *CPUBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	c := &CPUBackend{
		workers: workers,
		mem:     NewMemory("device", limit),
		queue:   make(chan Kernel, 64),
	}
	go c.stream()
	return c
}

func (c *CPUBackend) Name() string    { return fmt.Sprintf("cpu (%d workers)", c.workers) }
func (c *CPUBackend) Available() bool { return true }
func (c *CPUBackend) Memory() *Memory { return c.mem }
func (c *CPUBackend) Workers() int    { return c.workers }

func (c *CPUBackend) Launch(k Kernel) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()

	if c.closed {
		c.mu.Lock()
		if c.err == nil {
			c.err = &dynamo.DeviceError{Stage: k.Stage, Kernel: k.Name, Code: CodeStreamStopped}
		}
		c.mu.Unlock()
		return
	}
	c.pending.Add(1)
	c.queue <- k
}

func (c *CPUBackend) Synchronize() error {
	c.pending.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *CPUBackend) Cleanup() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.queue)
}

func (c *CPUBackend) stream() {
	for k := range c.queue {
		c.mu.Lock()
		failed := c.err != nil
		c.mu.Unlock()

		// a failed stream skips everything queued behind the failure
		if !failed {
			if err := c.execute(k); err != nil {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
		}
		c.pending.Done()
	}
}

func (c *CPUBackend) execute(k Kernel) error {
	if k.N <= 0 {
		return nil
	}
	block := k.Block
	if block <= 0 {
		block = DefaultBlockSize
	}

	if k.N <= block {
		return c.runBlock(k, 0, k.N)
	}

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(c.workers)

	for start := 0; start < k.N; start += block {
		end := start + block
		if end > k.N {
			end = k.N
		}
		s, e := start, end
		g.Go(func() error {
			return c.runBlock(k, s, e)
		})
	}

	return g.Wait()
}

func (c *CPUBackend) runBlock(k Kernel, start, end int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &dynamo.DeviceError{
				Stage:  k.Stage,
				Kernel: k.Name,
				Code:   CodeKernelPanic,
				Err:    fmt.Errorf("block [%d,%d): %v", start, end, r),
			}
		}
	}()

	if runErr := k.Run(start, end); runErr != nil {
		return &dynamo.DeviceError{Stage: k.Stage, Kernel: k.Name, Code: CodeKernelFailed, Err: runErr}
	}
	return nil
}
