package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/dynsph/internal/dynamo"
)

// Body is the committed state of one floating body at the end of a step.
type Body struct {
	Id     int
	Center dynamo.Double3
	Vel    dynamo.Double3
	Omega  dynamo.Double3
}

// Sample is what the driver reports after every completed step.
type Sample struct {
	Step    int
	Time    float64
	Dt      float64
	Np      int
	NpbOk   int
	Extrema dynamo.Extrema
	Bodies  []Body
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Stability is the fraction of steps whose maximum velocity stayed below
// threshold.
type Stability struct {
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{threshold: threshold}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(sm Sample) {
	s.samples++
	if sm.Extrema.VelMax > s.threshold || math.IsNaN(sm.Extrema.VelMax) {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// PeakVelocity tracks the largest particle speed seen.
type PeakVelocity struct {
	peak float64
}

func NewPeakVelocity() *PeakVelocity { return &PeakVelocity{} }

func (p *PeakVelocity) Name() string     { return "peak_velocity" }
func (p *PeakVelocity) Observe(s Sample) { p.peak = math.Max(p.peak, s.Extrema.VelMax) }
func (p *PeakVelocity) Value() float64   { return p.peak }
func (p *PeakVelocity) Reset()           { p.peak = 0 }

// MeanDt is the average step size.
type MeanDt struct {
	sum     float64
	samples int
}

func NewMeanDt() *MeanDt { return &MeanDt{} }

func (m *MeanDt) Name() string { return "mean_dt" }

func (m *MeanDt) Observe(s Sample) {
	m.sum += s.Dt
	m.samples++
}

func (m *MeanDt) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanDt) Reset() { m.sum, m.samples = 0, 0 }

// Heave records the vertical position of one floating body and reports its
// dominant oscillation frequency.
type Heave struct {
	body  int
	times []float64
	z     []float64
}

func NewHeave(body int) *Heave { return &Heave{body: body} }

func (h *Heave) Name() string { return fmt.Sprintf("heave_frequency_%d", h.body) }

func (h *Heave) Observe(s Sample) {
	for _, b := range s.Bodies {
		if b.Id == h.body {
			h.times = append(h.times, s.Time)
			h.z = append(h.z, b.Center.Z)
			return
		}
	}
}

func (h *Heave) Value() float64 {
	f, err := DominantFrequency(h.times, h.z)
	if err != nil {
		return 0
	}
	return f
}

func (h *Heave) Reset() {
	h.times = h.times[:0]
	h.z = h.z[:0]
}
