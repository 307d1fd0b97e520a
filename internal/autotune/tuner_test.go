package autotune

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mocked(timings map[int]time.Duration) Benchmark {
	return func(ctx context.Context, cat Category, block int) (time.Duration, error) {
		return timings[block], nil
	}
}

func TestSelectsFastestAndReuses(t *testing.T) {
	cfg := Config{
		Mode:       ModeAuto,
		Candidates: []int{32, 64, 128},
		Fixed:      Sizes{128, 128, 128},
	}
	tuner := New(cfg, mocked(map[int]time.Duration{
		32:  5 * time.Millisecond,
		64:  2 * time.Millisecond,
		128: 3 * time.Millisecond,
	}), nil)

	ctx := context.Background()
	key := Key{Dem: true}

	sizes, err := tuner.Select(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 64, sizes.For(ForcesFluid))
	assert.Equal(t, 64, sizes.For(ForcesBound))
	assert.Equal(t, 64, sizes.For(ForcesDem))

	calls := tuner.Benchmarks()
	assert.Equal(t, 9, calls)

	for step := 0; step < 100; step++ {
		sizes, err := tuner.Select(ctx, key)
		require.NoError(t, err)
		require.Equal(t, 64, sizes.For(ForcesFluid))
	}
	assert.Equal(t, calls, tuner.Benchmarks())
	assert.Equal(t, 2*time.Millisecond, tuner.Timings(ForcesFluid)[64])
}

func TestKeyChangeRetunesOnce(t *testing.T) {
	cfg := Config{Mode: ModeAuto, Candidates: []int{32, 64}, Fixed: Sizes{128, 128, 128}}
	tuner := New(cfg, mocked(map[int]time.Duration{32: time.Millisecond, 64: 2 * time.Millisecond}), nil)
	ctx := context.Background()

	_, err := tuner.Select(ctx, Key{})
	require.NoError(t, err)
	assert.Equal(t, 4, tuner.Benchmarks(), "dem is skipped without dem")

	_, err = tuner.Select(ctx, Key{Periodic: true})
	require.NoError(t, err)
	assert.Equal(t, 8, tuner.Benchmarks())

	for i := 0; i < 10; i++ {
		_, err = tuner.Select(ctx, Key{Periodic: true})
		require.NoError(t, err)
	}
	assert.Equal(t, 8, tuner.Benchmarks())
}

func TestFixedModeNeverBenchmarks(t *testing.T) {
	called := false
	bench := func(ctx context.Context, cat Category, block int) (time.Duration, error) {
		called = true
		return 0, nil
	}
	tuner := New(Config{Mode: ModeFixed, Candidates: []int{32}, Fixed: Sizes{96, 64, 32}}, bench, nil)

	sizes, err := tuner.Select(context.Background(), Key{Dem: true})
	require.NoError(t, err)
	assert.Equal(t, Sizes{96, 64, 32}, sizes)
	assert.False(t, called)
}

func TestBenchmarkErrorKeepsPrevious(t *testing.T) {
	boom := errors.New("boom")
	tuner := New(Config{Mode: ModeAuto, Candidates: []int{32}, Fixed: Sizes{128, 128, 128}},
		func(ctx context.Context, cat Category, block int) (time.Duration, error) { return 0, boom }, nil)

	sizes, err := tuner.Select(context.Background(), Key{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Sizes{128, 128, 128}, sizes)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		err  bool
	}{
		{"auto", ModeAuto, false},
		{"Fixed", ModeFixed, false},
		{"", ModeFixed, false},
		{"fast", ModeFixed, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
