package metrics

import "fmt"

// Series keeps every sample of a run for plotting and export.
type Series struct {
	samples []Sample
}

func NewSeries() *Series { return &Series{} }

func (s *Series) Add(sm Sample)     { s.samples = append(s.samples, sm) }
func (s *Series) Len() int          { return len(s.samples) }
func (s *Series) Samples() []Sample { return s.samples }

// Columns lists the names accepted by Column.
var Columns = []string{"time", "dt", "np", "npbok", "velmax", "acemax", "viscdtmax"}

// Column extracts one named quantity over the whole run.
func (s *Series) Column(name string) ([]float64, error) {
	get, ok := map[string]func(Sample) float64{
		"time":      func(sm Sample) float64 { return sm.Time },
		"dt":        func(sm Sample) float64 { return sm.Dt },
		"np":        func(sm Sample) float64 { return float64(sm.Np) },
		"npbok":     func(sm Sample) float64 { return float64(sm.NpbOk) },
		"velmax":    func(sm Sample) float64 { return sm.Extrema.VelMax },
		"acemax":    func(sm Sample) float64 { return sm.Extrema.AceMax },
		"viscdtmax": func(sm Sample) float64 { return sm.Extrema.ViscDtMax },
	}[name]
	if !ok {
		return nil, fmt.Errorf("metrics: unknown column %q", name)
	}
	out := make([]float64, len(s.samples))
	for i, sm := range s.samples {
		out[i] = get(sm)
	}
	return out, nil
}

// BodyZ returns the times and vertical centre positions of one body.
func (s *Series) BodyZ(id int) (times, z []float64) {
	for _, sm := range s.samples {
		for _, b := range sm.Bodies {
			if b.Id == id {
				times = append(times, sm.Time)
				z = append(z, b.Center.Z)
			}
		}
	}
	return times, z
}
