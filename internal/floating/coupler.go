package floating

import (
	"fmt"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Body is the rigid state of one floating object.
type Body struct {
	Id int
	// Pini and Np select the body's entries in the store's floating index map.
	Pini  int
	Np    int
	Mass  float64
	Massp float32

	Center r3.Vec
	// Angles accumulates the rotation in the yz, xz and xy planes.
	Angles r3.Vec
	Fvel   r3.Vec
	Fomega r3.Vec

	// Inertia0 is the inertia tensor at creation. Nil means it is computed
	// from the particle positions by Init.
	Inertia0 *r3.Mat
	Rot      *r3.Mat

	Force  r3.Vec
	Torque r3.Vec
}

func (b *Body) clone() Body {
	c := *b
	if b.Rot != nil {
		c.Rot = r3.NewMat(nil)
		c.Rot.CloneFrom(b.Rot)
	}
	return c
}

// WorldInertia returns R I0 R^T.
func (b *Body) WorldInertia() *r3.Mat {
	var tmp, out r3.Mat
	tmp.Mul(b.Rot, b.Inertia0)
	out.Mul(&tmp, b.Rot.T())
	return &out
}

type load struct {
	force  r3.Vec
	torque r3.Vec
}

// Coupler owns the rigid-body state of every floating body and moves their
// particles.
type Coupler struct {
	store  *particles.Store
	log    *logrus.Entry
	timers *compute.Timers
	bodies []Body
	loads  []load
	// centers are the body centres matching the current particle positions,
	// which differ from the committed ones after a predictor.
	centers []r3.Vec
}

func NewCoupler(store *particles.Store, bodies []Body) (*Coupler, error) {
	next := 0
	for i := range bodies {
		b := &bodies[i]
		if b.Pini != next || b.Np <= 0 {
			return nil, fmt.Errorf("floating: body %d range [%d,%d) is not contiguous after %d", b.Id, b.Pini, b.Pini+b.Np, next)
		}
		if b.Mass <= 0 {
			return nil, fmt.Errorf("floating: body %d has mass %g", b.Id, b.Mass)
		}
		next += b.Np
		if b.Massp == 0 {
			b.Massp = float32(b.Mass / float64(b.Np))
		}
		if b.Rot == nil {
			b.Rot = r3.NewMat([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
		}
	}
	centers := make([]r3.Vec, len(bodies))
	for i, b := range bodies {
		centers[i] = b.Center
	}
	rt := store.Runtime()
	return &Coupler{
		store:   store,
		log:     rt.Log.WithField("component", "floating"),
		timers:  rt.Timers,
		bodies:  bodies,
		loads:   make([]load, len(bodies)),
		centers: centers,
	}, nil
}

func (c *Coupler) Count() int { return len(c.bodies) }

// Bodies returns a copy of the committed body states.
func (c *Coupler) Bodies() []Body {
	out := make([]Body, len(c.bodies))
	for i := range c.bodies {
		out[i] = c.bodies[i].clone()
	}
	return out
}

// Init stores the per-particle masses in the particle store and computes the
// inertia of bodies that were created without one.
func (c *Coupler) Init() error {
	massp := make([]float32, len(c.bodies))
	for i, b := range c.bodies {
		massp[i] = b.Massp
	}
	if err := c.store.SetFloatingMass(massp); err != nil {
		return err
	}

	for i := range c.bodies {
		b := &c.bodies[i]
		if b.Inertia0 != nil {
			continue
		}
		b.Inertia0 = r3.NewMat(nil)
		outer := r3.NewMat(nil)
		c.eachParticle(b, false, func(_ int, p r3.Vec) {
			r := r3.Sub(p, b.Center)
			r2 := r3.Norm2(r)
			outer.Outer(float64(b.Massp), r, r)
			for k := 0; k < 3; k++ {
				b.Inertia0.Set(k, k, b.Inertia0.At(k, k)+float64(b.Massp)*r2)
			}
			b.Inertia0.Sub(b.Inertia0, outer)
		})
		c.log.WithFields(logrus.Fields{"body": b.Id, "mass": b.Mass}).Debug("inertia computed from particles")
	}
	return nil
}

func (c *Coupler) eachParticle(b *Body, usePre bool, fn func(idx int, p r3.Vec)) {
	d := c.store.Dev()
	xy, z := d.Posxy.Data(), d.Posz.Data()
	if usePre && d.PosxyPre != nil {
		xy, z = d.PosxyPre.Data(), d.PoszPre.Data()
	}
	ridp := c.store.FtRidp()
	for k := b.Pini; k < b.Pini+b.Np; k++ {
		idx := int(ridp[k])
		fn(idx, r3.Vec{X: xy[idx].X, Y: xy[idx].Y, Z: z[idx]})
	}
}

// Accumulate sums force and torque about the centre over each body's
// particles from the current accelerations.
func (c *Coupler) Accumulate() error {
	if err := c.store.Guard("floating accumulate"); err != nil {
		return err
	}
	if err := c.store.Runtime().Device.Synchronize(); err != nil {
		return fmt.Errorf("floating: %w", err)
	}
	ace := c.store.Dev().Ace.Data()
	for i := range c.bodies {
		b := &c.bodies[i]
		var l load
		m := float64(b.Massp)
		center := c.centers[i]
		c.eachParticle(b, false, func(idx int, p r3.Vec) {
			f := r3.Scale(m, r3.Vec{X: float64(ace[idx].X), Y: float64(ace[idx].Y), Z: float64(ace[idx].Z)})
			l.force = r3.Add(l.force, f)
			l.torque = r3.Add(l.torque, r3.Cross(r3.Sub(p, center), f))
		})
		c.loads[i] = l
	}
	return nil
}

// Load returns the force and torque of the last Accumulate for body i.
func (c *Coupler) Load(i int) (force, torque r3.Vec) {
	return c.loads[i].force, c.loads[i].torque
}

// integrate advances b by dt under l and returns the new state and the
// rotation applied over the step.
func integrate(b *Body, l load, dt float64) (Body, *r3.Mat, error) {
	next := b.clone()

	acc := r3.Scale(1/b.Mass, l.force)
	next.Fvel = r3.Add(b.Fvel, r3.Scale(dt, acc))
	next.Center = r3.Add(b.Center, r3.Scale(dt/2, r3.Add(b.Fvel, next.Fvel)))

	iw := b.WorldInertia()
	var inv mat.Dense
	if err := inv.Inverse(iw); err != nil {
		return Body{}, nil, fmt.Errorf("floating: body %d inertia: %w", b.Id, err)
	}
	gyro := r3.Cross(b.Fomega, iw.MulVec(b.Fomega))
	rhs := r3.Sub(l.torque, gyro)
	alpha := r3.Vec{
		X: inv.At(0, 0)*rhs.X + inv.At(0, 1)*rhs.Y + inv.At(0, 2)*rhs.Z,
		Y: inv.At(1, 0)*rhs.X + inv.At(1, 1)*rhs.Y + inv.At(1, 2)*rhs.Z,
		Z: inv.At(2, 0)*rhs.X + inv.At(2, 1)*rhs.Y + inv.At(2, 2)*rhs.Z,
	}
	next.Fomega = r3.Add(b.Fomega, r3.Scale(dt, alpha))

	theta := r3.Scale(dt/2, r3.Add(b.Fomega, next.Fomega))
	next.Angles = r3.Add(b.Angles, theta)
	drot := r3.NewMat([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if angle := r3.Norm(theta); angle > 0 {
		drot = r3.NewRotation(angle, theta).Mat()
	}
	next.Rot.Mul(drot, b.Rot)

	next.Force, next.Torque = l.force, l.torque
	return next, drot, nil
}

// Advance accumulates the loads, integrates every body over dt and writes
// rigid positions and velocities back to the body particles. Particle
// positions are taken from the predictor arrays when usePre is set. Only a
// committing call updates the stored body state.
func (c *Coupler) Advance(dt float64, usePre, commit bool) error {
	if len(c.bodies) == 0 {
		return nil
	}
	defer c.timers.Start(compute.TimerFloating)()

	if err := c.Accumulate(); err != nil {
		return err
	}

	d := c.store.Dev()
	xy, z, vr := d.Posxy.Data(), d.Posz.Data(), d.Velrhop.Data()
	for i := range c.bodies {
		b := &c.bodies[i]
		next, drot, err := integrate(b, c.loads[i], dt)
		if err != nil {
			return err
		}

		c.eachParticle(b, usePre, func(idx int, p r3.Vec) {
			r := drot.MulVec(r3.Sub(p, b.Center))
			pos := r3.Add(next.Center, r)
			vel := r3.Add(next.Fvel, r3.Cross(next.Fomega, r))
			xy[idx] = dynamo.Double2{X: pos.X, Y: pos.Y}
			z[idx] = pos.Z
			vr[idx].X, vr[idx].Y, vr[idx].Z = float32(vel.X), float32(vel.Y), float32(vel.Z)
		})

		c.centers[i] = next.Center
		if commit {
			*b = next
		}
	}
	return nil
}
