// Package timestep computes the adaptive step size from the extrema of each
// force evaluation.
package timestep

import (
	"fmt"
	"math"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/sirupsen/logrus"
)

type Config struct {
	H   float64
	Cs0 float64
	CFL float64

	DtMin float64
	DtMax float64
	// DtInit seeds the first step. Zero uses DtMax.
	DtInit float64
	// Fixed bypasses the adaptive computation when positive.
	Fixed float64
}

func (c Config) Validate() error {
	switch {
	case c.Fixed > 0:
		return nil
	case c.H <= 0 || c.Cs0 <= 0:
		return fmt.Errorf("timestep: h and cs0 must be positive")
	case c.CFL <= 0 || c.CFL > 1:
		return fmt.Errorf("timestep: cfl must be in (0,1], got %g", c.CFL)
	case c.DtMin <= 0 || c.DtMax < c.DtMin:
		return fmt.Errorf("timestep: invalid bounds [%g,%g]", c.DtMin, c.DtMax)
	}
	return nil
}

// Sample is one persisted step size with the extrema that produced it.
type Sample struct {
	Dt      float64
	Dt1     float64
	Dt2     float64
	Clamped bool
	Extrema dynamo.Extrema
}

// Controller derives dt from a CFL condition on the force and viscous
// limits. Only final evaluations are persisted.
type Controller struct {
	cfg     Config
	log     *logrus.Entry
	dt      float64
	clamps  int
	history []Sample
}

func New(cfg Config, log *logrus.Entry) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	dt := cfg.DtInit
	switch {
	case cfg.Fixed > 0:
		dt = cfg.Fixed
	case dt <= 0:
		dt = cfg.DtMax
	}
	return &Controller{cfg: cfg, log: log.WithField("component", "timestep"), dt: dt}, nil
}

// Compute returns the step size for ext. When final is set the result
// becomes the persisted dt of the run.
func (c *Controller) Compute(ext dynamo.Extrema, final bool) float64 {
	if c.cfg.Fixed > 0 {
		if final {
			c.history = append(c.history, Sample{Dt: c.cfg.Fixed, Extrema: ext})
		}
		return c.cfg.Fixed
	}

	h := c.cfg.H
	dt1 := math.Inf(1)
	if ext.AceMax > 0 {
		dt1 = math.Sqrt(h / ext.AceMax)
	}
	dt2 := h / (max(c.cfg.Cs0, 10*ext.VelMax) + h*ext.ViscDtMax)
	dt := c.cfg.CFL * min(dt1, dt2)

	clamped := false
	switch {
	case dt < c.cfg.DtMin || math.IsNaN(dt):
		clamped = true
		dt = c.cfg.DtMin
	case dt > c.cfg.DtMax:
		clamped = true
		dt = c.cfg.DtMax
	}

	if final {
		if clamped {
			c.clamps++
			c.log.WithFields(logrus.Fields{"dt1": dt1, "dt2": dt2, "dt": dt}).Debug("step size clamped")
		}
		c.dt = dt
		c.history = append(c.history, Sample{Dt: dt, Dt1: dt1, Dt2: dt2, Clamped: clamped, Extrema: ext})
	}
	return dt
}

// Dt is the last persisted step size.
func (c *Controller) Dt() float64 { return c.dt }

func (c *Controller) Clamps() int { return c.clamps }

func (c *Controller) History() []Sample {
	return append([]Sample(nil), c.history...)
}

func (c *Controller) Fixed() bool { return c.cfg.Fixed > 0 }
