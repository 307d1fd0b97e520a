package metrics

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

var ErrShortSeries = errors.New("metrics: series too short for a spectrum")

// Resample interpolates a series with irregular step sizes onto n evenly
// spaced points and returns them with their spacing.
func Resample(times, values []float64, n int) ([]float64, float64) {
	out := make([]float64, n)
	if len(times) == 0 || n == 0 {
		return out, 0
	}
	t0, t1 := times[0], times[len(times)-1]
	step := 0.0
	if n > 1 {
		step = (t1 - t0) / float64(n-1)
	}
	k := 0
	for i := range out {
		t := t0 + float64(i)*step
		for k < len(times)-2 && times[k+1] < t {
			k++
		}
		if k+1 >= len(times) || times[k+1] == times[k] {
			out[i] = values[k]
			continue
		}
		f := (t - times[k]) / (times[k+1] - times[k])
		f = math.Max(0, math.Min(1, f))
		out[i] = values[k] + f*(values[k+1]-values[k])
	}
	return out, step
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// PowerSpectrum returns the one-sided magnitude spectrum of data after
// removing its mean.
func PowerSpectrum(data []float64) []float64 {
	mean := 0.0
	for _, v := range data {
		mean += v
	}
	if len(data) > 0 {
		mean /= float64(len(data))
	}
	centered := make([]float64, len(data))
	for i, v := range data {
		centered[i] = v - mean
	}
	spec := fft.FFTReal(centered)
	ps := make([]float64, len(spec)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spec[i])
	}
	return ps
}

// DominantFrequency returns the frequency in Hz of the strongest non-zero
// mode of a time series sampled at irregular times.
func DominantFrequency(times, values []float64) (float64, error) {
	if len(times) < 8 || len(times) != len(values) {
		return 0, ErrShortSeries
	}
	n := nextPow2(len(times))
	uniform, step := Resample(times, values, n)
	if step <= 0 {
		return 0, ErrShortSeries
	}
	ps := PowerSpectrum(uniform)
	best := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	return float64(best) / (float64(n) * step), nil
}
