package autotune

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Mode int

const (
	ModeFixed Mode = iota
	ModeAuto
)

func (m Mode) String() string {
	if m == ModeAuto {
		return "auto"
	}
	return "fixed"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "fixed":
		return ModeFixed, nil
	case "auto":
		return ModeAuto, nil
	}
	return ModeFixed, fmt.Errorf("autotune: unknown mode %q", s)
}

// Category is a kernel family tuned independently.
type Category int

const (
	ForcesFluid Category = iota
	ForcesBound
	ForcesDem
	numCategories
)

func (c Category) String() string {
	switch c {
	case ForcesFluid:
		return "fluid"
	case ForcesBound:
		return "bound"
	case ForcesDem:
		return "dem"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Key is the part of the run configuration a selection depends on.
type Key struct {
	Periodic bool
	Symmetry bool
	Dem      bool
}

// Sizes holds one block size per category.
type Sizes [numCategories]int

func (s Sizes) For(c Category) int { return s[c] }

// Benchmark runs a representative workload of cat with the given block size
// and returns its elapsed time.
type Benchmark func(ctx context.Context, cat Category, block int) (time.Duration, error)

type Config struct {
	Mode       Mode
	Candidates []int
	Fixed      Sizes
	// Repeats is how many times each candidate is measured; the fastest
	// sample counts.
	Repeats int
}

func DefaultConfig() Config {
	return Config{
		Mode:       ModeFixed,
		Candidates: []int{32, 64, 128, 256},
		Fixed:      Sizes{128, 128, 64},
		Repeats:    1,
	}
}

// Tuner picks launch block sizes. In auto mode the selection is benchmarked
// once per Key and reused until the key changes.
type Tuner struct {
	cfg   Config
	bench Benchmark
	log   *logrus.Entry

	mu      sync.Mutex
	tuned   bool
	key     Key
	current Sizes
	calls   int
	timings map[Category]map[int]time.Duration
}

func New(cfg Config, bench Benchmark, log *logrus.Entry) *Tuner {
	if cfg.Repeats < 1 {
		cfg.Repeats = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Tuner{
		cfg:     cfg,
		bench:   bench,
		log:     log.WithField("component", "autotune"),
		current: cfg.Fixed,
	}
}

func (t *Tuner) Mode() Mode { return t.cfg.Mode }

// Select returns the block sizes for key, benchmarking only when nothing is
// cached for it.
func (t *Tuner) Select(ctx context.Context, key Key) (Sizes, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.Mode == ModeFixed || t.bench == nil {
		return t.cfg.Fixed, nil
	}
	if t.tuned && t.key == key {
		return t.current, nil
	}

	sizes := t.cfg.Fixed
	timings := make(map[Category]map[int]time.Duration)
	for c := Category(0); c < numCategories; c++ {
		if c == ForcesDem && !key.Dem {
			continue
		}
		best, samples, err := t.tune(ctx, c)
		if err != nil {
			return t.current, err
		}
		sizes[c] = best
		timings[c] = samples
	}

	if t.tuned {
		t.log.WithFields(logrus.Fields{"from": fmt.Sprintf("%+v", t.key), "to": fmt.Sprintf("%+v", key)}).
			Info("configuration changed, block sizes re-tuned")
	}
	t.tuned = true
	t.key = key
	t.current = sizes
	t.timings = timings
	t.log.WithFields(logrus.Fields{
		"fluid": sizes[ForcesFluid],
		"bound": sizes[ForcesBound],
		"dem":   sizes[ForcesDem],
	}).Info("block sizes selected")
	return sizes, nil
}

func (t *Tuner) tune(ctx context.Context, c Category) (int, map[int]time.Duration, error) {
	best := t.cfg.Fixed[c]
	bestTime := time.Duration(math.MaxInt64)
	samples := make(map[int]time.Duration, len(t.cfg.Candidates))

	for _, block := range t.cfg.Candidates {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		sample := time.Duration(math.MaxInt64)
		for r := 0; r < t.cfg.Repeats; r++ {
			d, err := t.bench(ctx, c, block)
			t.calls++
			if err != nil {
				return 0, nil, fmt.Errorf("autotune: %s block %d: %w", c, block, err)
			}
			sample = min(sample, d)
		}
		samples[block] = sample
		if sample < bestTime {
			best, bestTime = block, sample
		}
	}
	return best, samples, nil
}

// Current returns the last selection without benchmarking.
func (t *Tuner) Current() Sizes {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Benchmarks is the number of benchmark calls made so far.
func (t *Tuner) Benchmarks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Timings returns the samples of the last tuning pass for c.
func (t *Tuner) Timings(c Category) map[int]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]time.Duration, len(t.timings[c]))
	for k, v := range t.timings[c] {
		out[k] = v
	}
	return out
}

// Invalidate drops the cached selection so the next Select benchmarks again.
func (t *Tuner) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tuned = false
}
