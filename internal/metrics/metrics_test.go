package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/dynsph/internal/dynamo"
)

func TestStability(t *testing.T) {
	m := NewStability(2.0)
	if m.Value() != 1.0 {
		t.Errorf("empty stability = %f", m.Value())
	}
	for _, v := range []float64{0.5, 1.5, 3.0, math.NaN()} {
		m.Observe(Sample{Extrema: dynamo.Extrema{VelMax: v}})
	}
	if math.Abs(m.Value()-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %f", m.Value())
	}
	m.Reset()
	if m.Value() != 1.0 {
		t.Errorf("expected 1 after reset, got %f", m.Value())
	}
}

func TestPeakVelocityAndMeanDt(t *testing.T) {
	peak, mean := NewPeakVelocity(), NewMeanDt()
	for i, v := range []float64{1, 4, 2} {
		s := Sample{Dt: float64(i + 1), Extrema: dynamo.Extrema{VelMax: v}}
		peak.Observe(s)
		mean.Observe(s)
	}
	if peak.Value() != 4 {
		t.Errorf("peak = %f", peak.Value())
	}
	if mean.Value() != 2 {
		t.Errorf("mean dt = %f", mean.Value())
	}
}

func TestResampleLinear(t *testing.T) {
	times := []float64{0, 0.1, 0.4, 1.0}
	values := []float64{0, 1, 4, 10}
	out, step := Resample(times, values, 11)
	if math.Abs(step-0.1) > 1e-12 {
		t.Fatalf("step = %g", step)
	}
	for i, v := range out {
		if math.Abs(v-float64(i)) > 1e-9 {
			t.Errorf("out[%d] = %g, want %d", i, v, i)
		}
	}
}

func TestDominantFrequency(t *testing.T) {
	tests := []struct {
		name string
		freq float64
	}{
		{"slow heave", 0.5},
		{"fast heave", 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var times, z []float64
			tm := 0.0
			for i := 0; tm < 8; i++ {
				times = append(times, tm)
				z = append(z, 0.3+0.02*math.Sin(2*math.Pi*tt.freq*tm))
				tm += 0.004 + 0.002*float64(i%3)
			}
			got, err := DominantFrequency(times, z)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.freq) > 0.15 {
				t.Errorf("frequency = %g, want %g", got, tt.freq)
			}
		})
	}

	if _, err := DominantFrequency([]float64{0, 1}, []float64{0, 1}); err != ErrShortSeries {
		t.Errorf("expected ErrShortSeries, got %v", err)
	}
}

func TestSeriesColumns(t *testing.T) {
	s := NewSeries()
	for i := 0; i < 3; i++ {
		s.Add(Sample{
			Step: i, Time: float64(i) * 0.1, Dt: 0.1, Np: 100 + i,
			Extrema: dynamo.Extrema{VelMax: float64(i)},
			Bodies:  []Body{{Id: 7, Center: dynamo.Double3{Z: float64(i)}}},
		})
	}
	for _, name := range Columns {
		col, err := s.Column(name)
		if err != nil || len(col) != 3 {
			t.Errorf("column %s: %v %v", name, col, err)
		}
	}
	np, _ := s.Column("np")
	if np[2] != 102 {
		t.Errorf("np column %v", np)
	}
	if _, err := s.Column("pressure"); err == nil {
		t.Error("unknown column accepted")
	}
	times, z := s.BodyZ(7)
	if len(times) != 3 || z[2] != 2 {
		t.Errorf("body z %v %v", times, z)
	}

	h := NewHeave(7)
	for _, sm := range s.Samples() {
		h.Observe(sm)
	}
	if h.Value() != 0 {
		t.Errorf("short heave series should report 0, got %g", h.Value())
	}
}
