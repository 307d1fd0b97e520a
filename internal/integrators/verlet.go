package integrators

import (
	"fmt"
	"strings"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/sirupsen/logrus"
)

// Scheme is the time integration method chosen for a run.
type Scheme int

const (
	SchemeVerlet Scheme = iota
	SchemeSymplectic
)

func (s Scheme) String() string {
	if s == SchemeSymplectic {
		return "symplectic"
	}
	return "verlet"
}

func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(s) {
	case "", "verlet":
		return SchemeVerlet, nil
	case "symplectic":
		return SchemeSymplectic, nil
	}
	return SchemeVerlet, fmt.Errorf("integrators: unknown scheme %q", s)
}

// Mirror returns the previous-time-level arrays the scheme needs.
func (s Scheme) Mirror() particles.Mirror {
	if s == SchemeSymplectic {
		return particles.MirrorSymplectic
	}
	return particles.MirrorVerlet
}

// State is the position of the integrator in its step cycle.
type State int

const (
	StateVerlet State = iota
	StatePredictor
	StateCorrector
)

func (s State) String() string {
	switch s {
	case StatePredictor:
		return "SymplecticPredictor"
	case StateCorrector:
		return "SymplecticCorrector"
	}
	return "Verlet"
}

type Config struct {
	Scheme Scheme
	// VerletSteps is the interval of plain forward steps that resynchronise
	// the leapfrog levels. Zero never resynchronises after the first step.
	VerletSteps int
	Rhop0       float32
	// Shifting adds the shifting displacement to fluid particles.
	Shifting bool
}

const stageIntegration = "integration"

// Integrator advances the particle store by one step from the accelerations
// of the force pipeline.
type Integrator struct {
	store *particles.Store
	rt    *compute.Runtime
	log   *logrus.Entry
	cfg   Config

	state  State
	verlet int

	inputs  []AccInput
	damping []DampingZone
}

func New(store *particles.Store, cfg Config) (*Integrator, error) {
	if got := store.Options().Mirror; got != cfg.Scheme.Mirror() {
		return nil, fmt.Errorf("integrators: %s needs store mirror %d, store has %d", cfg.Scheme, cfg.Scheme.Mirror(), got)
	}
	if cfg.Rhop0 <= 0 {
		return nil, fmt.Errorf("integrators: rhop0 must be positive, got %g", cfg.Rhop0)
	}
	if cfg.VerletSteps < 0 {
		return nil, fmt.Errorf("integrators: verlet steps must not be negative, got %d", cfg.VerletSteps)
	}
	if cfg.Shifting && !store.Options().Shifting {
		return nil, fmt.Errorf("integrators: shifting requested but the store has no shifting arrays")
	}
	state := StateVerlet
	if cfg.Scheme == SchemeSymplectic {
		state = StatePredictor
	}
	rt := store.Runtime()
	return &Integrator{
		store: store,
		rt:    rt,
		log:   rt.Log.WithField("component", "integrator"),
		cfg:   cfg,
		state: state,
	}, nil
}

func (in *Integrator) State() State    { return in.state }
func (in *Integrator) Scheme() Scheme  { return in.cfg.Scheme }
func (in *Integrator) VerletStep() int { return in.verlet }

func (in *Integrator) expect(op string, want State) error {
	if in.state != want {
		return &dynamo.SequenceError{Op: op, Want: want.String(), Got: in.state.String()}
	}
	return in.store.Guard(op)
}

func (in *Integrator) shift() []dynamo.Float3 {
	if !in.cfg.Shifting {
		return nil
	}
	return in.store.Dev().ShiftPos.Data()
}

func (in *Integrator) finish(op string) error {
	if err := in.rt.Device.Synchronize(); err != nil {
		return fmt.Errorf("integrators: %s: %w", op, err)
	}
	return nil
}

// Verlet advances every particle by dt. The first step of a run and every
// VerletSteps-th step are plain forward steps; the others blend from the
// previous time level over 2dt. Always final.
func (in *Integrator) Verlet(dt float64) (bool, error) {
	if err := in.expect("Verlet", StateVerlet); err != nil {
		return false, err
	}
	defer in.rt.Timers.Start(compute.TimerIntegration)()

	in.verlet++
	plain := in.verlet == 1 || (in.cfg.VerletSteps > 0 && in.verlet%in.cfg.VerletSteps == 0)

	np := in.store.Counts().Np
	d := in.store.Dev()
	code := d.Code.Data()
	xy, z := d.Posxy.Data(), d.Posz.Data()
	vr, vrm1 := d.Velrhop.Data(), d.VelrhopM1.Data()
	ace, ar := d.Ace.Data(), d.Ar.Data()
	shift := in.shift()
	rhop0 := in.cfg.Rhop0

	dtf := float32(dt)
	dt205 := 0.5 * dt * dt
	lead := 2 * dtf
	if plain {
		lead = dtf
	}

	in.rt.Device.Launch(compute.Kernel{Stage: stageIntegration, Name: "verlet", N: np, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for i := start; i < end; i++ {
			cur, base := vr[i], vrm1[i]
			if plain {
				base = cur
			}
			next := cur
			next.W = base.W + ar[i]*lead

			switch c := code[i]; {
			case c.IsBound():
				next.W = max(next.W, rhop0)
			case c.IsFluid():
				a := ace[i]
				next.X = base.X + a.X*lead
				next.Y = base.Y + a.Y*lead
				next.Z = base.Z + a.Z*lead
				dx := float64(cur.X)*dt + float64(a.X)*dt205
				dy := float64(cur.Y)*dt + float64(a.Y)*dt205
				dz := float64(cur.Z)*dt + float64(a.Z)*dt205
				if shift != nil {
					dx += float64(shift[i].X)
					dy += float64(shift[i].Y)
					dz += float64(shift[i].Z)
				}
				xy[i].X += dx
				xy[i].Y += dy
				z[i] += dz
			}
			vrm1[i] = cur
			vr[i] = next
		}
		return nil
	}})
	in.verletTemp(np, plain, dt)

	if err := in.finish("verlet"); err != nil {
		return false, err
	}
	return true, nil
}

func (in *Integrator) verletTemp(np int, plain bool, dt float64) {
	d := in.store.Dev()
	if d.Temp == nil || d.TempM1 == nil || d.Atemp == nil {
		return
	}
	t, tm1, at := d.Temp.Data(), d.TempM1.Data(), d.Atemp.Data()
	lead := 2 * dt
	if plain {
		lead = dt
	}
	in.rt.Device.Launch(compute.Kernel{Stage: stageIntegration, Name: "verlet-temp", N: np, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for i := start; i < end; i++ {
			base := tm1[i]
			if plain {
				base = t[i]
			}
			tm1[i] = t[i]
			t[i] = base + float64(at[i])*lead
		}
		return nil
	}})
}
