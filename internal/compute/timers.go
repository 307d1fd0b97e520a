package compute

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stage timer names.
const (
	TimerPreForces   = "pre-forces"
	TimerForces      = "forces"
	TimerPostForces  = "post-forces"
	TimerNeighbors   = "neighbors"
	TimerShifting    = "shifting"
	TimerIntegration = "integration"
	TimerFloating    = "floating"
	TimerMotion      = "motion"
	TimerPeriodic    = "periodic"
	TimerResize      = "resize"
	TimerTuning      = "tuning"
)

type timer struct {
	total time.Duration
	count int
}

// Timers accumulates wall time per pipeline stage.
type Timers struct {
	mu      sync.Mutex
	entries map[string]*timer
}

func NewTimers() *Timers {
	return &Timers{entries: make(map[string]*timer)}
}

// Start begins timing name and returns the function that stops it.
func (t *Timers) Start(name string) func() {
	begin := time.Now()
	return func() {
		elapsed := time.Since(begin)
		t.mu.Lock()
		defer t.mu.Unlock()
		e, ok := t.entries[name]
		if !ok {
			e = &timer{}
			t.entries[name] = e
		}
		e.total += elapsed
		e.count++
	}
}

func (t *Timers) Total(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[name]; ok {
		return e.total
	}
	return 0
}

func (t *Timers) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[name]; ok {
		return e.count
	}
	return 0
}

func (t *Timers) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.entries))
	for n := range t.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Report formats every timer as "name: total (count)" lines.
func (t *Timers) Report() string {
	var b strings.Builder
	for _, n := range t.Names() {
		fmt.Fprintf(&b, "%-12s %10.3f ms (%d)\n", n, float64(t.Total(n).Microseconds())/1000, t.Count(n))
	}
	return b.String()
}
