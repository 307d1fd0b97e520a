package forces

import (
	"math"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/floating"
	"gonum.org/v1/gonum/spatial/r3"
)

// pairView is the read-only particle state shared by the interaction
// kernels. Each kernel writes only the accumulators of its own particle, so
// blocks run without synchronisation.
type pairView struct {
	p     Params
	code  []dynamo.TypeCode
	ps    []dynamo.Float4
	vr    []dynamo.Float4
	temp  []float64
	massp []float32
	eta2  float32
	ddtkh float32
	supp2 float32
}

func (pl *Pipeline) view() pairView {
	d := pl.store.Dev()
	sup := float32(pl.p.Support())
	return pairView{
		p:     pl.p,
		code:  d.Code.Data(),
		ps:    d.PsPospress.Data(),
		vr:    d.Velrhop.Data(),
		temp:  nilSlice[float64](d.Temp),
		massp: pl.store.FtoMassp(),
		eta2:  float32(0.01 * pl.p.H * pl.p.H),
		ddtkh: float32(2*pl.p.H) * pl.p.DeltaSph,
		supp2: sup * sup,
	}
}

func (v *pairView) mass(j int) float32 {
	c := v.code[j]
	switch {
	case c.IsBound():
		return v.p.MassBound
	case c.IsFloating() && c.Object() < len(v.massp):
		return v.massp[c.Object()]
	}
	return v.p.MassFluid
}

// pair returns ri-rj, vi-vj and the gradient factor, or ok=false when j is
// outside the support.
func (v *pairView) pair(i, j int) (dx, dv dynamo.Float3, r2, fac float32, ok bool) {
	dx = v.ps[i].Vec().Sub(v.ps[j].Vec())
	r2 = dx.Norm2()
	if r2 >= v.supp2 || r2 < 1e-18 {
		return dx, dv, r2, 0, false
	}
	fac = float32(v.p.GradFactor(math.Sqrt(float64(r2))))
	dv = v.vr[i].Vec().Sub(v.vr[j].Vec())
	return dx, dv, r2, fac, true
}

func dot(a, b dynamo.Float3) float32 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func (v *pairView) shiftsWith(j int) bool {
	c := v.code[j]
	switch v.p.Shift {
	case ShiftNoBound:
		return !c.IsBound()
	case ShiftNoFixed:
		return c.Class() != dynamo.CodeFixed
	}
	return true
}

// fluidKernel computes momentum, continuity, density diffusion, shifting
// and conduction terms for fluid and floating particles, visited in cell
// order.
func (pl *Pipeline) fluidKernel() func(start, end int) error {
	v := pl.view()
	order := pl.fluidOrder
	idx := pl.index
	d := pl.store.Dev()
	ace, ar, visc, delta := d.Ace.Data(), d.Ar.Data(), d.ViscDt.Data(), d.Delta.Data()
	atemp := nilSlice[float32](d.Atemp)
	shift, detect := nilSlice[dynamo.Float3](d.ShiftPos), nilSlice[float32](d.ShiftDetect)
	doShift := shift != nil && pl.p.Shift != ShiftNone
	cs0, visco, h := pl.p.Cs0, pl.p.Visco, float32(pl.p.H)

	return func(start, end int) error {
		nbr := make([]int, 0, 64)
		for k := start; k < end; k++ {
			i := order[k]
			ci := v.code[i]
			rhoi, pressi := v.vr[i].W, v.ps[i].W
			var acei, shifti dynamo.Float3
			var ari, deltai, viscdt, detecti, ati float32

			nbr = idx.Neighbors(i, nbr[:0])
			for _, j := range nbr {
				cj := v.code[j]
				if ci.IsFloating() {
					if cj.IsFloating() && cj.Object() == ci.Object() {
						continue
					}
					if pl.p.Dem && cj.IsBound() {
						continue
					}
				}
				dx, dv, r2, fac, ok := v.pair(i, j)
				if !ok {
					continue
				}
				mj := v.mass(j)
				rhoj, pressj := v.vr[j].W, v.ps[j].W

				dvdx := dot(dv, dx)
				dotRr2 := dvdx / (r2 + v.eta2)
				viscdt = max(viscdt, float32(math.Abs(float64(dotRr2))))

				pterm := (pressi + pressj) / (rhoi * rhoj)
				var pivisc float32
				if dvdx < 0 {
					robar := (rhoi + rhoj) / 2
					pivisc = -visco * cs0 * h * dotRr2 / robar
				}
				acei = acei.Sub(dx.Scale(mj * (pterm + pivisc) * fac))
				ari += mj * dvdx * fac

				if v.ddtkh > 0 && ci.IsFluid() && !cj.IsBound() {
					deltai += v.ddtkh * cs0 * (rhoj - rhoi) * (-fac * r2) / (r2 + v.eta2) * mj / rhoj
				}
				if doShift && v.shiftsWith(j) {
					vj := mj / rhoj
					shifti = shifti.Add(dx.Scale(vj * fac))
					detecti -= vj * fac * r2
				}
				if atemp != nil && v.temp != nil {
					ati += 2 * pl.p.Diffusivity * (mj / rhoj) * float32(v.temp[i]-v.temp[j]) * fac * r2 / (r2 + v.eta2)
				}
			}

			ace[i] = acei.Add(pl.p.Gravity)
			ar[i] = ari
			visc[i] = viscdt
			delta[i] = deltai
			if doShift {
				shift[i] = shifti
				detect[i] = detecti
			}
			if atemp != nil {
				atemp[i] = ati
			}
		}
		return nil
	}
}

// boundKernel computes the density rate of boundary particles near fluid.
func (pl *Pipeline) boundKernel() func(start, end int) error {
	v := pl.view()
	ok := pl.boundOk
	idx := pl.index
	d := pl.store.Dev()
	ar, visc := d.Ar.Data(), d.ViscDt.Data()

	return func(start, end int) error {
		nbr := make([]int, 0, 64)
		for k := start; k < end; k++ {
			i := ok[k]
			var ari, viscdt float32
			nbr = idx.Neighbors(i, nbr[:0])
			for _, j := range nbr {
				if v.code[j].IsBound() {
					continue
				}
				dx, dv, r2, fac, in := v.pair(i, j)
				if !in {
					continue
				}
				dvdx := dot(dv, dx)
				viscdt = max(viscdt, float32(math.Abs(float64(dvdx/(r2+v.eta2)))))
				ari += v.mass(j) * dvdx * fac
			}
			ar[i] = ari
			visc[i] = viscdt
		}
		return nil
	}
}

// demKernel adds contact accelerations between floating particles and
// boundaries or other bodies.
func (pl *Pipeline) demKernel() func(start, end int) error {
	v := pl.view()
	floats := pl.floatIdx
	idx := pl.index
	mats := pl.mats
	dp := pl.p.Dp
	ace := pl.store.Dev().Ace.Data()

	return func(start, end int) error {
		nbr := make([]int, 0, 64)
		for k := start; k < end; k++ {
			i := floats[k]
			ci := v.code[i]
			mi, ok := mats.Lookup(ci)
			if !ok {
				continue
			}
			var f r3.Vec
			nbr = idx.Neighbors(i, nbr[:0])
			for _, j := range nbr {
				cj := v.code[j]
				if cj.IsFluid() || (cj.IsFloating() && cj.Object() == ci.Object()) {
					continue
				}
				mj, ok := mats.Lookup(cj)
				if !ok {
					continue
				}
				dx := v.ps[i].Vec().Sub(v.ps[j].Vec()).Double()
				r := dx.Norm()
				if r == 0 || r >= dp {
					continue
				}
				dvel := v.vr[i].Vec().Sub(v.vr[j].Vec()).Double()
				f = r3.Add(f, floating.ContactForce(mi, mj, floating.Contact{
					Overlap: dp - r,
					Radius:  dp / 2,
					Normal:  r3.Vec{X: dx.X / r, Y: dx.Y / r, Z: dx.Z / r},
					RelVel:  r3.Vec{X: dvel.X, Y: dvel.Y, Z: dvel.Z},
				}))
			}
			if f == (r3.Vec{}) {
				continue
			}
			m := float64(v.mass(i))
			ace[i] = ace[i].Add(dynamo.Float3{X: float32(f.X / m), Y: float32(f.Y / m), Z: float32(f.Z / m)})
		}
		return nil
	}
}
