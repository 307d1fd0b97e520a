package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/dynsph/internal/autotune"
	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/floating"
	"github.com/san-kum/dynsph/internal/forces"
	"github.com/san-kum/dynsph/internal/integrators"
	"github.com/san-kum/dynsph/internal/metrics"
	"github.com/san-kum/dynsph/internal/motion"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/san-kum/dynsph/internal/timestep"
	"github.com/sirupsen/logrus"
)

// Simulator drives the step sequence over a particle store. A nil coupler
// runs without floating bodies.
type Simulator struct {
	rt       *compute.Runtime
	store    *particles.Store
	pipeline *forces.Pipeline
	integ    *integrators.Integrator
	ctrl     *timestep.Controller
	coupler  *floating.Coupler
	mover    *motion.Mover
	log      *logrus.Entry

	metrics   []metrics.Metric
	observers []Observer
	parts     []PartObserver

	time float64
	step int
}

func New(store *particles.Store, pipeline *forces.Pipeline, integ *integrators.Integrator, ctrl *timestep.Controller, coupler *floating.Coupler) *Simulator {
	rt := store.Runtime()
	return &Simulator{
		rt:       rt,
		store:    store,
		pipeline: pipeline,
		integ:    integ,
		ctrl:     ctrl,
		coupler:  coupler,
		log:      rt.Log.WithField("component", "sim"),
	}
}

func (s *Simulator) AddMetric(m metrics.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer)         { s.observers = append(s.observers, o) }
func (s *Simulator) AddPartObserver(p PartObserver) { s.parts = append(s.parts, p) }

// SetMover moves the moving boundaries after every step. Nil disables it.
func (s *Simulator) SetMover(m *motion.Mover) { s.mover = m }

func (s *Simulator) Time() float64 { return s.time }
func (s *Simulator) Step() int     { return s.step }

// Run advances until the configured time or step limit. The context is only
// checked between steps; a cancelled run returns the partial result with
// the context error.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	result := &Result{Series: metrics.NewSeries(), Metrics: make(map[string]float64)}
	for _, m := range s.metrics {
		m.Reset()
	}

	if err := s.store.RunPeriodic(cfg.Periodic); err != nil {
		return nil, fmt.Errorf("sim: initial periodic: %w", err)
	}
	key := autotune.Key{Periodic: cfg.Periodic.Enabled(), Symmetry: cfg.Symmetry, Dem: s.pipeline.Params().Dem}
	if err := s.pipeline.Tune(ctx, key); err != nil {
		return nil, fmt.Errorf("sim: tuning: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"np":       s.store.Counts().Np,
		"scheme":   s.integ.Scheme().String(),
		"duration": cfg.Duration,
	}).Info("run started")

	nextPart := 0.0
	if err := s.emitPart(cfg, result, &nextPart); err != nil {
		return result, err
	}

	for s.more(cfg) {
		select {
		case <-ctx.Done():
			s.finish(result)
			return result, ctx.Err()
		default:
		}

		dt, err := s.advance()
		if err != nil {
			s.finish(result)
			return result, err
		}
		if s.mover != nil {
			if err := s.mover.Run(s.mover.Calc(s.time, dt)); err != nil {
				s.finish(result)
				return result, s.fail("motion", err)
			}
		}
		s.time += dt
		s.step++

		if err := s.boundary(cfg); err != nil {
			s.finish(result)
			return result, &StepError{Step: s.step, Time: s.time, Stage: "boundary", Err: err}
		}

		sample := s.sample(dt)
		result.Series.Add(sample)
		for _, m := range s.metrics {
			m.Observe(sample)
		}
		for _, o := range s.observers {
			o.OnStep(sample)
		}
		if err := s.emitPart(cfg, result, &nextPart); err != nil {
			s.finish(result)
			return result, err
		}
	}

	s.finish(result)
	s.log.WithFields(logrus.Fields{
		"steps":  result.Steps,
		"time":   result.Time,
		"clamps": result.Clamps,
	}).Info("run finished")
	return result, nil
}

func (s *Simulator) more(cfg Config) bool {
	if cfg.MaxSteps > 0 && s.step >= cfg.MaxSteps {
		return false
	}
	return cfg.Duration <= 0 || s.time < cfg.Duration
}

// advance runs one full step with the configured scheme and returns the
// step size used.
func (s *Simulator) advance() (float64, error) {
	if s.integ.Scheme() == integrators.SchemeSymplectic {
		return s.symplectic()
	}
	return s.verlet()
}

func (s *Simulator) fail(stage string, err error) error {
	return &StepError{Step: s.step + 1, Time: s.time, Stage: stage, Err: err}
}

func (s *Simulator) verlet() (float64, error) {
	ext, err := s.pipeline.Interact()
	if err != nil {
		return 0, s.fail("interaction", err)
	}
	dt := s.ctrl.Compute(ext, true)
	if err := s.pipeline.RunShifting(dt); err != nil {
		return 0, s.fail("shifting", err)
	}
	if err := s.integ.ApplyAccInputs(s.time); err != nil {
		return 0, s.fail("acceleration input", err)
	}
	if _, err := s.integ.Verlet(dt); err != nil {
		return 0, s.fail("verlet", err)
	}
	if err := s.integ.RunDamping(dt); err != nil {
		return 0, s.fail("damping", err)
	}
	if s.coupler != nil {
		if err := s.coupler.Advance(dt, false, true); err != nil {
			return 0, s.fail("floating", err)
		}
	}
	return dt, nil
}

// symplectic uses the step size persisted by the previous corrector for
// both stages, lowered to the bound of the predictor forces when those are
// stricter, and persists the one computed from the corrector forces.
func (s *Simulator) symplectic() (float64, error) {
	extPre, err := s.pipeline.Interact()
	if err != nil {
		return 0, s.fail("interaction", err)
	}
	dt := min(s.ctrl.Dt(), s.ctrl.Compute(extPre, false))
	if err := s.integ.ApplyAccInputs(s.time); err != nil {
		return 0, s.fail("acceleration input", err)
	}
	if _, err := s.integ.Predictor(dt); err != nil {
		return 0, s.fail("predictor", err)
	}
	if s.coupler != nil {
		if err := s.coupler.Advance(dt/2, true, false); err != nil {
			s.integ.Reset()
			return 0, s.fail("floating", err)
		}
	}

	ext, err := s.pipeline.Interact()
	if err != nil {
		s.integ.Reset()
		return 0, s.fail("interaction", err)
	}
	if err := s.integ.ApplyAccInputs(s.time + dt/2); err != nil {
		s.integ.Reset()
		return 0, s.fail("acceleration input", err)
	}
	if err := s.pipeline.RunShifting(dt); err != nil {
		s.integ.Reset()
		return 0, s.fail("shifting", err)
	}
	if _, err := s.integ.Corrector(dt); err != nil {
		return 0, s.fail("corrector", err)
	}
	if err := s.integ.RunDamping(dt); err != nil {
		return 0, s.fail("damping", err)
	}
	if s.coupler != nil {
		if err := s.coupler.Advance(dt, true, true); err != nil {
			return 0, s.fail("floating", err)
		}
	}
	s.ctrl.Compute(ext, true)
	return dt, nil
}

// boundary runs the operations that may change the particle layout. They
// only happen between steps.
func (s *Simulator) boundary(cfg Config) error {
	if !cfg.Periodic.Enabled() {
		return nil
	}
	if _, err := s.store.WrapPeriodic(cfg.Periodic); err != nil {
		return err
	}
	before := s.store.DeviceCapacity()
	if err := s.store.RunPeriodic(cfg.Periodic); err != nil {
		return err
	}
	if after := s.store.DeviceCapacity(); after != before {
		s.log.WithFields(logrus.Fields{"step": s.step, "from": before, "to": after}).Info("particle store grew for periodic duplicates")
	}
	return nil
}

func (s *Simulator) sample(dt float64) metrics.Sample {
	c := s.store.Counts()
	sm := metrics.Sample{
		Step:    s.step,
		Time:    s.time,
		Dt:      dt,
		Np:      c.Np,
		NpbOk:   c.NpbOk,
		Extrema: s.pipeline.Extrema(),
	}
	if s.coupler != nil {
		for _, b := range s.coupler.Bodies() {
			sm.Bodies = append(sm.Bodies, metrics.Body{
				Id:     b.Id,
				Center: dynamo.Double3{X: b.Center.X, Y: b.Center.Y, Z: b.Center.Z},
				Vel:    dynamo.Double3{X: b.Fvel.X, Y: b.Fvel.Y, Z: b.Fvel.Z},
				Omega:  dynamo.Double3{X: b.Fomega.X, Y: b.Fomega.Y, Z: b.Fomega.Z},
			})
		}
	}
	return sm
}

// emitPart hands a snapshot of the normal particles to the part observers
// when the output time has been reached.
func (s *Simulator) emitPart(cfg Config, result *Result, next *float64) error {
	if cfg.PartEvery <= 0 || len(s.parts) == 0 || s.time < *next {
		return nil
	}
	c := s.store.Counts()
	sn, err := s.store.Snapshot(0, c.Np, particles.FieldAll)
	if err != nil {
		return err
	}
	sn = normalOnly(sn)
	for _, p := range s.parts {
		if err := p(result.Parts, s.time, sn); err != nil {
			return fmt.Errorf("sim: part %d: %w", result.Parts, err)
		}
	}
	result.Parts++
	for *next <= s.time {
		*next += cfg.PartEvery
	}
	return nil
}

func normalOnly(sn *particles.Snapshot) *particles.Snapshot {
	if sn.Counts.NpbPer == 0 && sn.Counts.NpfPer == 0 {
		return sn
	}
	keep := make([]int, 0, sn.Len())
	for i, c := range sn.Code {
		if !c.IsPeriodic() {
			keep = append(keep, i)
		}
	}
	out := &particles.Snapshot{Pini: sn.Pini, Counts: sn.Counts}
	for _, i := range keep {
		out.Idp = append(out.Idp, sn.Idp[i])
		out.Code = append(out.Code, sn.Code[i])
		out.Dcell = append(out.Dcell, sn.Dcell[i])
		out.Pos = append(out.Pos, sn.Pos[i])
		out.Vel = append(out.Vel, sn.Vel[i])
		out.Rhop = append(out.Rhop, sn.Rhop[i])
		out.Ace = append(out.Ace, sn.Ace[i])
		out.Ar = append(out.Ar, sn.Ar[i])
		if sn.Temp != nil {
			out.Temp = append(out.Temp, sn.Temp[i])
		}
	}
	return out
}

func (s *Simulator) finish(result *Result) {
	result.Steps = s.step
	result.Time = s.time
	result.Clamps = s.ctrl.Clamps()
	result.Counts = s.store.Counts()
	result.Timers = s.rt.Timers.Report()
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}
