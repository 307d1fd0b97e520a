package compute

import (
	"fmt"
	"unsafe"

	"github.com/san-kum/dynsph/internal/dynamo"
)

// Kind tags the element type of a Buffer.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUint32
	KindTypeCode
	KindFloat32
	KindFloat64
	KindFloat3
	KindFloat4
	KindDouble2
	KindDouble3
)

func (k Kind) String() string {
	switch k {
	case KindUint32:
		return "uint32"
	case KindTypeCode:
		return "typecode"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindFloat3:
		return "float3"
	case KindFloat4:
		return "float4"
	case KindDouble2:
		return "double2"
	case KindDouble3:
		return "double3"
	}
	return "unknown"
}

func kindOf[T any]() Kind {
	var zero T
	switch any(zero).(type) {
	case uint32:
		return KindUint32
	case dynamo.TypeCode:
		return KindTypeCode
	case float32:
		return KindFloat32
	case float64:
		return KindFloat64
	case dynamo.Float3:
		return KindFloat3
	case dynamo.Float4:
		return KindFloat4
	case dynamo.Double2:
		return KindDouble2
	case dynamo.Double3:
		return KindDouble3
	}
	return KindUnknown
}

// ElemSize returns the byte size of one element of T.
func ElemSize[T any]() int64 {
	var zero T
	return int64(unsafe.Sizeof(zero))
}

// Column is the element-type independent view of a Buffer used for
// layout-wide operations (compaction, duplication, reordering, accounting).
type Column interface {
	Kind() Kind
	Cap() int
	Len() int
	SetLen(n int)
	Bytes() int64
	Move(dst, src, n int)
	Permute(perm []int)
	Release()
}

// Buffer is a typed allocation with a kind tag, a fixed capacity and a live
// length. Growth never happens in place: Regrow returns a new Buffer.
type Buffer[T any] struct {
	kind   Kind
	data   []T
	length int
	mem    *Memory
}

// Alloc reserves capacity elements of T on mem.
func Alloc[T any](mem *Memory, capacity int) (*Buffer[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("compute: negative capacity %d", capacity)
	}
	bytes := int64(capacity) * ElemSize[T]()
	if err := mem.Reserve(bytes); err != nil {
		return nil, err
	}
	return &Buffer[T]{kind: kindOf[T](), data: make([]T, capacity), mem: mem}, nil
}

func (b *Buffer[T]) Kind() Kind   { return b.kind }
func (b *Buffer[T]) Cap() int     { return len(b.data) }
func (b *Buffer[T]) Len() int     { return b.length }
func (b *Buffer[T]) Bytes() int64 { return int64(len(b.data)) * ElemSize[T]() }

func (b *Buffer[T]) SetLen(n int) {
	if n > len(b.data) {
		n = len(b.data)
	}
	b.length = n
}

// Data returns the full-capacity backing slice.
func (b *Buffer[T]) Data() []T { return b.data }

// Live returns the slice of live elements.
func (b *Buffer[T]) Live() []T { return b.data[:b.length] }

// Move copies n elements from src to dst with overlap handled like memmove.
func (b *Buffer[T]) Move(dst, src, n int) {
	copy(b.data[dst:dst+n], b.data[src:src+n])
}

// Permute rewrites the first len(perm) elements so element i takes the old
// value at perm[i].
func (b *Buffer[T]) Permute(perm []int) {
	tmp := make([]T, len(perm))
	for i, p := range perm {
		tmp[i] = b.data[p]
	}
	copy(b.data, tmp)
}

// Regrow allocates a buffer of the given capacity on the same memory and
// copies the live range into it. The receiver is left untouched.
func (b *Buffer[T]) Regrow(capacity int) (*Buffer[T], error) {
	nb, err := Alloc[T](b.mem, capacity)
	if err != nil {
		return nil, err
	}
	n := b.length
	if n > capacity {
		n = capacity
	}
	copy(nb.data, b.data[:n])
	nb.length = n
	return nb, nil
}

func (b *Buffer[T]) Release() {
	if b == nil || b.data == nil {
		return
	}
	b.mem.Release(b.Bytes())
	b.data = nil
	b.length = 0
}

// CopyBuffer copies the first n elements of src into dst.
func CopyBuffer[T any](dst, src *Buffer[T], n int) {
	copy(dst.data[:n], src.data[:n])
	if dst.length < n {
		dst.length = n
	}
}
