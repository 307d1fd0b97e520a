package sim

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/dynsph/internal/cases"
	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/config"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/floating"
	"github.com/san-kum/dynsph/internal/forces"
	"github.com/san-kum/dynsph/internal/integrators"
	"github.com/san-kum/dynsph/internal/metrics"
	"github.com/san-kum/dynsph/internal/motion"
	"github.com/san-kum/dynsph/internal/neighbor"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/san-kum/dynsph/internal/timestep"
	"github.com/sirupsen/logrus"
)

// Run is a fully assembled simulation: the runtime, the loaded particle
// store and every component of the step.
type Run struct {
	Runtime    *compute.Runtime
	Store      *particles.Store
	Pipeline   *forces.Pipeline
	Integrator *integrators.Integrator
	Controller *timestep.Controller
	Coupler    *floating.Coupler
	Mover      *motion.Mover
	Case       *cases.Case
	Params     forces.Params
	Config     Config
	Sim        *Simulator
}

// Backend selects the device named in the configuration.
func Backend(mc config.MemoryConfig) (compute.Backend, error) {
	limit := mc.DeviceLimitMB << 20
	switch strings.ToLower(mc.Backend) {
	case "cpu":
		return compute.NewCPUBackend(limit, mc.Workers), nil
	case "cuda":
		dev := compute.NewCUDABackend(limit)
		if !dev.Available() {
			return nil, fmt.Errorf("sim: %s", dev.Name())
		}
		return dev, nil
	case "", "auto":
		return compute.AutoSelectBackend(limit), nil
	}
	return nil, fmt.Errorf("sim: unknown backend %q", mc.Backend)
}

// Build generates the configured case and wires every component around it.
// The caller owns the returned run and must Close it.
func Build(cfg *config.Config, log *logrus.Entry) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := cases.NewRegistry().Build(cfg.Case.Name, cfg.Geometry())
	if err != nil {
		return nil, err
	}
	if cfg.Physics.Dem && c.Materials.Len() == 0 {
		return nil, fmt.Errorf("sim: case %s has no contact materials for dem", c.Name)
	}

	dev, err := Backend(cfg.Memory)
	if err != nil {
		return nil, err
	}
	rt := compute.NewRuntime(dev, cfg.Memory.HostLimitMB<<20, log)
	rt.Mode = fmt.Sprintf("%s/%s", dev.Name(), cfg.Integration.Scheme)

	r := &Run{Runtime: rt, Case: c}
	if err := r.assemble(cfg); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Run) assemble(cfg *config.Config) error {
	c := r.Case
	scheme, _ := integrators.ParseScheme(cfg.Integration.Scheme)
	shift, _ := forces.ParseShiftMode(cfg.Physics.Shifting)
	tune, err := cfg.Tune()
	if err != nil {
		return err
	}

	r.Store = particles.New(r.Runtime, particles.Options{
		Margin:        cfg.Memory.Margin,
		Overprovision: cfg.Memory.Overprovision,
		Mirror:        scheme.Mirror(),
		Temperature:   cfg.Physics.Temperature,
		Shifting:      shift != forces.ShiftNone,
	})
	floats := 0
	for _, b := range c.Bodies {
		floats += b.Np
	}
	if err := r.Store.AllocateFixed(particles.FixedSizes{FloatingBodies: len(c.Bodies), FloatingParticles: floats}); err != nil {
		return err
	}
	if err := r.Store.AllocateParticles(len(c.Particles), cfg.Memory.Overprovision); err != nil {
		return err
	}
	if err := r.Store.Upload(c.Particles); err != nil {
		return err
	}

	h := cfg.H()
	rho0 := cfg.Physics.Rhop0
	mass := float32(rho0 * c.Dp * c.Dp * c.Dp)
	cs0 := cfg.Physics.CoefSound * math.Sqrt(math.Abs(cfg.Physics.Gravity)*c.FluidHeight)
	r.Params = forces.Params{
		H:           h,
		Dp:          c.Dp,
		MassFluid:   mass,
		MassBound:   mass,
		Rhop0:       float32(rho0),
		Gamma:       float32(cfg.Physics.Gamma),
		Cs0:         float32(cs0),
		Gravity:     dynamo.Float3{Z: float32(cfg.Physics.Gravity)},
		Visco:       float32(cfg.Physics.Visco),
		DeltaSph:    float32(cfg.Physics.DeltaSph),
		Diffusivity: float32(cfg.Physics.Diffusivity),
		Shift:       shift,
		ShiftCoef:   float32(cfg.Physics.ShiftCoef),
		ShiftTfs:    float32(cfg.Physics.ShiftTfs),
		Dem:         cfg.Physics.Dem,
	}
	if r.Pipeline, err = forces.New(r.Runtime, r.Store, neighbor.New(), r.Params, tune, c.Materials); err != nil {
		return err
	}

	r.Integrator, err = integrators.New(r.Store, integrators.Config{
		Scheme:      scheme,
		VerletSteps: cfg.Integration.VerletSteps,
		Rhop0:       float32(rho0),
		Shifting:    shift != forces.ShiftNone,
	})
	if err != nil {
		return err
	}

	r.Controller, err = timestep.New(timestep.Config{
		H:      h,
		Cs0:    cs0,
		CFL:    cfg.Integration.CFL,
		DtMin:  cfg.Integration.DtMin,
		DtMax:  cfg.Integration.DtMax,
		DtInit: cfg.Integration.DtInit,
		Fixed:  cfg.Integration.DtFixed,
	}, r.Runtime.Log)
	if err != nil {
		return err
	}

	if len(c.Bodies) > 0 {
		if r.Coupler, err = floating.NewCoupler(r.Store, c.Bodies); err != nil {
			return err
		}
		if err := r.Coupler.Init(); err != nil {
			return err
		}
	}

	if len(c.Motions) > 0 {
		r.Mover = motion.New(r.Store)
		for obj, mo := range c.Motions {
			if err := r.Mover.Add(obj, mo); err != nil {
				return err
			}
		}
	}

	periodic := c.Periodic
	if periodic.Enabled() {
		periodic.Width = r.Params.Support()
	}
	r.Config = Config{
		Duration:  cfg.Integration.Duration,
		MaxSteps:  cfg.Integration.MaxSteps,
		Periodic:  periodic,
		Symmetry:  cfg.Integration.Symmetry,
		PartEvery: cfg.Output.PartEvery,
	}

	r.Sim = New(r.Store, r.Pipeline, r.Integrator, r.Controller, r.Coupler)
	r.Sim.SetMover(r.Mover)
	r.Sim.AddMetric(metrics.NewStability(cs0))
	r.Sim.AddMetric(metrics.NewPeakVelocity())
	r.Sim.AddMetric(metrics.NewMeanDt())
	for _, b := range c.Bodies {
		r.Sim.AddMetric(metrics.NewHeave(b.Id))
	}

	r.Runtime.Log.WithFields(logrus.Fields{
		"case":   c.Name,
		"np":     len(c.Particles),
		"bodies": len(c.Bodies),
		"h":      h,
		"cs0":    cs0,
	}).Info("case loaded")
	return nil
}

// Close releases the particle memory and the device stream.
func (r *Run) Close() {
	if r.Store != nil {
		r.Store.Free()
	}
	r.Runtime.Close()
}
