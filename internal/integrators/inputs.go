package integrators

import (
	"fmt"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/sirupsen/logrus"
)

// AccInput is an external acceleration applied to one particle group
// during [Start, End).
type AccInput struct {
	Class  dynamo.TypeCode
	Object int
	Start  float64
	End    float64
	Acc    dynamo.Float3
}

func (a AccInput) active(t float64) bool { return t >= a.Start && t < a.End }

func (in *Integrator) AddAccInput(a AccInput) error {
	if a.Class.IsBound() {
		return fmt.Errorf("integrators: acceleration input on boundary class %v", a.Class)
	}
	if a.End <= a.Start {
		return fmt.Errorf("integrators: acceleration window [%g,%g) is empty", a.Start, a.End)
	}
	in.inputs = append(in.inputs, a)
	in.log.WithFields(logrus.Fields{"class": a.Class.String(), "start": a.Start, "end": a.End}).Debug("acceleration input added")
	return nil
}

// ApplyAccInputs adds every input active at t to the accelerations of its
// group. It runs between the force evaluation and the integration.
func (in *Integrator) ApplyAccInputs(t float64) error {
	var active []AccInput
	for _, a := range in.inputs {
		if a.active(t) {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return nil
	}
	if err := in.store.Guard("ApplyAccInputs"); err != nil {
		return err
	}
	c := in.store.Counts()
	d := in.store.Dev()
	code, ace := d.Code.Data(), d.Ace.Data()
	in.rt.Device.Launch(compute.Kernel{Stage: stageIntegration, Name: "acc-input", N: c.Np - c.Npb, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for k := start; k < end; k++ {
			i := c.Npb + k
			for _, a := range active {
				if code[i].Class() == a.Class.Class() && code[i].Object() == a.Object {
					ace[i] = ace[i].Add(a.Acc)
				}
			}
		}
		return nil
	}})
	return nil
}

// DampingZone slows fluid down past a plane. Origin lies on the plane and
// Normal points into the damped side; the reduction grows linearly over
// Width up to Redumax per unit time.
type DampingZone struct {
	Origin  dynamo.Double3
	Normal  dynamo.Double3
	Width   float64
	Redumax float64
}

func (in *Integrator) AddDamping(z DampingZone) error {
	n := z.Normal.Norm()
	if n == 0 || z.Width <= 0 || z.Redumax < 0 {
		return fmt.Errorf("integrators: invalid damping zone %+v", z)
	}
	z.Normal = z.Normal.Scale(1 / n)
	in.damping = append(in.damping, z)
	return nil
}

// RunDamping applies every damping zone to fluid velocities.
func (in *Integrator) RunDamping(dt float64) error {
	if len(in.damping) == 0 {
		return nil
	}
	if err := in.store.Guard("RunDamping"); err != nil {
		return err
	}
	c := in.store.Counts()
	d := in.store.Dev()
	code, xy, z, vr := d.Code.Data(), d.Posxy.Data(), d.Posz.Data(), d.Velrhop.Data()
	zones := in.damping
	in.rt.Device.Launch(compute.Kernel{Stage: stageIntegration, Name: "damping", N: c.Np - c.Npb, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for k := start; k < end; k++ {
			i := c.Npb + k
			if !code[i].IsFluid() {
				continue
			}
			p := dynamo.Double3{X: xy[i].X, Y: xy[i].Y, Z: z[i]}
			for _, zn := range zones {
				r := p.Sub(zn.Origin)
				dist := r.X*zn.Normal.X + r.Y*zn.Normal.Y + r.Z*zn.Normal.Z
				if dist <= 0 {
					continue
				}
				f := min(dist/zn.Width, 1)
				redu := float32(max(0, 1-zn.Redumax*f*dt))
				vr[i].X *= redu
				vr[i].Y *= redu
				vr[i].Z *= redu
			}
		}
		return nil
	}})
	return in.finish("damping")
}
