package dynamo

import (
	"sync/atomic"
	"testing"
)

func TestParallelForCoversRange(t *testing.T) {
	for _, n := range []int{0, 1, 7, 1000, 10007} {
		hits := make([]int32, n)
		var calls atomic.Int32
		ParallelFor(n, 64, func(start, end int) {
			calls.Add(1)
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, h)
			}
		}
		if calls.Load() == 0 {
			t.Errorf("n=%d: fn never called", n)
		}
	}
}
