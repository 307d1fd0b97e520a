package motion

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/sirupsen/logrus"
)

// Motion prescribes the path of one object as a displacement over a time
// interval.
type Motion interface {
	Displacement(t0, t1 float64) dynamo.Double3
	Validate() error
}

// Linear moves at constant velocity during [Start, Stop). A zero Stop never
// ends.
type Linear struct {
	Vel   dynamo.Double3
	Start float64
	Stop  float64
}

func (l Linear) Displacement(t0, t1 float64) dynamo.Double3 {
	a, b := window(t0, t1, l.Start, l.Stop)
	return l.Vel.Scale(b - a)
}

func (l Linear) Validate() error { return validWindow(l.Start, l.Stop) }

// Sine oscillates about the initial position with
// x(t) = Amp*(sin(2*pi*Freq*(t-Start)+Phase) - sin(Phase)) during
// [Start, Stop).
type Sine struct {
	Amp   dynamo.Double3
	Freq  float64
	Phase float64
	Start float64
	Stop  float64
}

func (s Sine) at(t float64) float64 {
	return math.Sin(2*math.Pi*s.Freq*(t-s.Start) + s.Phase)
}

func (s Sine) Displacement(t0, t1 float64) dynamo.Double3 {
	a, b := window(t0, t1, s.Start, s.Stop)
	if b <= a {
		return dynamo.Double3{}
	}
	return s.Amp.Scale(s.at(b) - s.at(a))
}

func (s Sine) Validate() error {
	if s.Freq <= 0 {
		return fmt.Errorf("motion: frequency must be positive, got %g", s.Freq)
	}
	return validWindow(s.Start, s.Stop)
}

// window clips [t0, t1) to the active interval [start, stop).
func window(t0, t1, start, stop float64) (float64, float64) {
	a, b := math.Max(t0, start), t1
	if stop > 0 {
		b = math.Min(b, stop)
	}
	if b < a {
		b = a
	}
	return a, b
}

func validWindow(start, stop float64) error {
	if start < 0 || (stop > 0 && stop <= start) {
		return fmt.Errorf("motion: invalid window [%g,%g)", start, stop)
	}
	return nil
}

// Move is the displacement of one object over a step and the mean velocity
// it implies.
type Move struct {
	Object int
	Disp   dynamo.Double3
	Vel    dynamo.Float3
}

// Mover applies prescribed motions to the moving boundary particles of a
// store.
type Mover struct {
	store   *particles.Store
	rt      *compute.Runtime
	log     *logrus.Entry
	motions map[int]Motion
}

func New(store *particles.Store) *Mover {
	rt := store.Runtime()
	return &Mover{
		store:   store,
		rt:      rt,
		log:     rt.Log.WithField("component", "motion"),
		motions: make(map[int]Motion),
	}
}

// Add sets the motion of a moving object, replacing any previous one.
func (m *Mover) Add(object int, mo Motion) error {
	if object < 0 || object >= dynamo.MaxObjects {
		return fmt.Errorf("motion: object %d out of range", object)
	}
	if err := mo.Validate(); err != nil {
		return err
	}
	m.motions[object] = mo
	m.log.WithFields(logrus.Fields{"object": object, "motion": fmt.Sprintf("%T", mo)}).Debug("motion added")
	return nil
}

func (m *Mover) Len() int { return len(m.motions) }

// Calc returns one move per object, ordered by object, for the step
// [t, t+dt). Objects outside their active window get a zero move so their
// wall velocity drops back to rest.
func (m *Mover) Calc(t, dt float64) []Move {
	moves := make([]Move, 0, len(m.motions))
	for obj, mo := range m.motions {
		mv := Move{Object: obj, Disp: mo.Displacement(t, t+dt)}
		if dt > 0 {
			mv.Vel = mv.Disp.Scale(1 / dt).Float()
		}
		moves = append(moves, mv)
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i].Object < moves[j].Object })
	return moves
}

// Run displaces the moving boundary particles of every object in moves and
// sets their velocity. Periodic duplicates move with their source.
func (m *Mover) Run(moves []Move) error {
	if len(moves) == 0 {
		return nil
	}
	if err := m.store.Guard("RunMotion"); err != nil {
		return err
	}
	defer m.rt.Timers.Start(compute.TimerMotion)()

	byObj := make([]*Move, 0)
	for k := range moves {
		obj := moves[k].Object
		for len(byObj) <= obj {
			byObj = append(byObj, nil)
		}
		byObj[obj] = &moves[k]
	}

	d := m.store.Dev()
	code, xy, z, vr := d.Code.Data(), d.Posxy.Data(), d.Posz.Data(), d.Velrhop.Data()
	npb := m.store.Counts().Npb
	m.rt.Device.Launch(compute.Kernel{Stage: "motion", Name: "motion", N: npb, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for i := start; i < end; i++ {
			c := code[i]
			if c.Class() != dynamo.CodeMoving || c.Object() >= len(byObj) || byObj[c.Object()] == nil {
				continue
			}
			mv := byObj[c.Object()]
			xy[i].X += mv.Disp.X
			xy[i].Y += mv.Disp.Y
			z[i] += mv.Disp.Z
			vr[i].X, vr[i].Y, vr[i].Z = mv.Vel.X, mv.Vel.Y, mv.Vel.Z
		}
		return nil
	}})
	if err := m.rt.Device.Synchronize(); err != nil {
		return fmt.Errorf("motion: %w", err)
	}
	return nil
}
