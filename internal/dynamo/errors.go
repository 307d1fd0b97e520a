package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for the execution core.
var (
	// ErrOutOfMemory indicates a host or device allocation could not be served.
	ErrOutOfMemory = errors.New("dynamo: out of memory")

	// ErrDevice indicates a kernel or memory transfer failed on the device.
	// Particle state is undefined afterwards.
	ErrDevice = errors.New("dynamo: device execution failed")

	// ErrSequence indicates a programming-contract violation: a corrector
	// without its predictor, or layout access during a resize.
	ErrSequence = errors.New("dynamo: sequencing violation")

	// ErrCapacity indicates the live particle count outgrew the allocation.
	// Callers recover by resizing once and retrying.
	ErrCapacity = errors.New("dynamo: particle capacity exhausted")
)

// AllocError reports a failed allocation with the memory state at the time.
type AllocError struct {
	Side      string
	Requested int64
	Used      int64
	Limit     int64
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("dynamo: out of %s memory: requested %d bytes with %d of %d in use",
		e.Side, e.Requested, e.Used, e.Limit)
}

func (e *AllocError) Unwrap() error { return ErrOutOfMemory }

// DeviceError wraps a device failure with the pipeline stage that hit it.
type DeviceError struct {
	Stage  string
	Kernel string
	Code   int
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dynamo: device error in %s/%s (code %d): %v", e.Stage, e.Kernel, e.Code, e.Err)
	}
	return fmt.Sprintf("dynamo: device error in %s/%s (code %d)", e.Stage, e.Kernel, e.Code)
}

func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDevice}
	}
	return []error{ErrDevice, e.Err}
}

// SequenceError reports an operation invoked out of its required order.
type SequenceError struct {
	Op   string
	Want string
	Got  string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("dynamo: %s requires %s, got %s", e.Op, e.Want, e.Got)
}

func (e *SequenceError) Unwrap() error { return ErrSequence }

// CapacityError reports which operation ran out of room and how much it needed.
type CapacityError struct {
	Op       string
	Required int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("dynamo: %s needs %d particles, capacity is %d", e.Op, e.Required, e.Capacity)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }
