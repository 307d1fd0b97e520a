package integrators

import (
	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
)

// Predictor saves the current state into the Pre arrays and advances it by
// half a step with the current accelerations. Never final.
func (in *Integrator) Predictor(dt float64) (bool, error) {
	if err := in.expect("Predictor", StatePredictor); err != nil {
		return false, err
	}
	defer in.rt.Timers.Start(compute.TimerIntegration)()

	np := in.store.Counts().Np
	d := in.store.Dev()
	code := d.Code.Data()
	xy, z, vr := d.Posxy.Data(), d.Posz.Data(), d.Velrhop.Data()
	xyPre, zPre, vrPre := d.PosxyPre.Data(), d.PoszPre.Data(), d.VelrhopPre.Data()
	ace, ar := d.Ace.Data(), d.Ar.Data()
	rhop0 := in.cfg.Rhop0
	dt05 := dt / 2
	dtf := float32(dt05)

	in.rt.Device.Launch(compute.Kernel{Stage: stageIntegration, Name: "symplectic-pre", N: np, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for i := start; i < end; i++ {
			xyPre[i], zPre[i], vrPre[i] = xy[i], z[i], vr[i]
			pre := vr[i]
			rhop := pre.W + ar[i]*dtf

			switch c := code[i]; {
			case c.IsBound():
				vr[i].W = max(rhop, rhop0)
			case c.IsFloating():
				vr[i].W = rhop
			default:
				a := ace[i]
				xy[i].X += float64(pre.X) * dt05
				xy[i].Y += float64(pre.Y) * dt05
				z[i] += float64(pre.Z) * dt05
				vr[i] = dynamo.Float4{X: pre.X + a.X*dtf, Y: pre.Y + a.Y*dtf, Z: pre.Z + a.Z*dtf, W: rhop}
			}
		}
		return nil
	}})
	in.symplecticTemp(np, dt05, true)

	if err := in.finish("predictor"); err != nil {
		return false, err
	}
	in.state = StateCorrector
	return false, nil
}

// Corrector advances the saved Pre state by the full step with the
// accelerations evaluated at the predicted state. It fails with a sequence
// error unless the predictor of the same step ran immediately before.
func (in *Integrator) Corrector(dt float64) (bool, error) {
	if err := in.expect("Corrector", StateCorrector); err != nil {
		return false, err
	}
	defer in.rt.Timers.Start(compute.TimerIntegration)()

	np := in.store.Counts().Np
	d := in.store.Dev()
	code := d.Code.Data()
	xy, z, vr := d.Posxy.Data(), d.Posz.Data(), d.Velrhop.Data()
	xyPre, zPre, vrPre := d.PosxyPre.Data(), d.PoszPre.Data(), d.VelrhopPre.Data()
	ace, ar := d.Ace.Data(), d.Ar.Data()
	shift := in.shift()
	rhop0 := in.cfg.Rhop0
	dtf := float32(dt)
	dt05 := dt / 2

	in.rt.Device.Launch(compute.Kernel{Stage: stageIntegration, Name: "symplectic-corr", N: np, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for i := start; i < end; i++ {
			pre := vrPre[i]
			eps := -ar[i] / vr[i].W * dtf
			rhop := pre.W * (2 - eps) / (2 + eps)

			switch c := code[i]; {
			case c.IsBound():
				vr[i].W = max(rhop, rhop0)
			case c.IsFloating():
				vr[i].W = rhop
			default:
				a := ace[i]
				next := dynamo.Float4{X: pre.X + a.X*dtf, Y: pre.Y + a.Y*dtf, Z: pre.Z + a.Z*dtf, W: rhop}
				dx := float64(pre.X+next.X) * dt05
				dy := float64(pre.Y+next.Y) * dt05
				dz := float64(pre.Z+next.Z) * dt05
				if shift != nil {
					dx += float64(shift[i].X)
					dy += float64(shift[i].Y)
					dz += float64(shift[i].Z)
				}
				xy[i].X = xyPre[i].X + dx
				xy[i].Y = xyPre[i].Y + dy
				z[i] = zPre[i] + dz
				vr[i] = next
			}
		}
		return nil
	}})
	in.symplecticTemp(np, dt, false)

	if err := in.finish("corrector"); err != nil {
		return false, err
	}
	in.state = StatePredictor
	return true, nil
}

func (in *Integrator) symplecticTemp(np int, dt float64, save bool) {
	d := in.store.Dev()
	if d.Temp == nil || d.TempPre == nil || d.Atemp == nil {
		return
	}
	t, pre, at := d.Temp.Data(), d.TempPre.Data(), d.Atemp.Data()
	in.rt.Device.Launch(compute.Kernel{Stage: stageIntegration, Name: "symplectic-temp", N: np, Block: compute.DefaultBlockSize, Run: func(start, end int) error {
		for i := start; i < end; i++ {
			if save {
				pre[i] = t[i]
			}
			t[i] = pre[i] + float64(at[i])*dt
		}
		return nil
	}})
}

// Reset returns a symplectic integrator to the predictor state, dropping a
// pending corrector. Used when a step is abandoned.
func (in *Integrator) Reset() {
	if in.cfg.Scheme == SchemeSymplectic {
		in.state = StatePredictor
	}
	in.verlet = 0
}
