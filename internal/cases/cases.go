package cases

import (
	"fmt"
	"math"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/floating"
	"github.com/san-kum/dynsph/internal/motion"
	"github.com/san-kum/dynsph/internal/particles"
	"gonum.org/v1/gonum/spatial/r3"
)

// Geometry sizes a generated case. Lengths are in metres.
type Geometry struct {
	Dp float64
	// Tank is the inner size of the container.
	Tank dynamo.Double3
	// Fluid is the extent of the initial fluid block, starting at the tank
	// corner.
	Fluid dynamo.Double3
	// Body is the size of the floating box, zero when the case has none.
	Body        dynamo.Double3
	BodyDensity float64
	// Velocity is the initial fluid velocity along x.
	Velocity float64
	// PaddleAmp and PaddleFreq set the stroke of a wave maker paddle.
	PaddleAmp  float64
	PaddleFreq float64
	// Layers is the number of boundary particle layers.
	Layers int
	Rhop0  float64
}

func (g Geometry) Validate() error {
	switch {
	case g.Dp <= 0:
		return fmt.Errorf("cases: dp must be positive, got %g", g.Dp)
	case g.Tank.X < g.Dp || g.Tank.Y < g.Dp || g.Tank.Z < g.Dp:
		return fmt.Errorf("cases: tank %v is smaller than dp", g.Tank)
	case g.Fluid.X > g.Tank.X || g.Fluid.Y > g.Tank.Y || g.Fluid.Z > g.Tank.Z:
		return fmt.Errorf("cases: fluid block %v does not fit the tank %v", g.Fluid, g.Tank)
	case g.Layers < 1:
		return fmt.Errorf("cases: at least one boundary layer is needed, got %d", g.Layers)
	case g.Rhop0 <= 0:
		return fmt.Errorf("cases: rhop0 must be positive, got %g", g.Rhop0)
	}
	return nil
}

// Case is a generated initial particle set.
type Case struct {
	Name      string
	Dp        float64
	Particles []particles.Particle
	Bodies    []floating.Body
	Materials *floating.MaterialTable
	Periodic  particles.Periodic
	// Motions maps moving boundary objects to their prescribed paths.
	Motions map[int]motion.Motion
	// FluidHeight is the still water depth used for the speed of sound.
	FluidHeight float64
	Min, Max    dynamo.Double3
}

// Count returns the number of particles of each class.
func (c *Case) Count() (bound, floats, fluid int) {
	for _, p := range c.Particles {
		switch {
		case p.Code.IsBound():
			bound++
		case p.Code.IsFloating():
			floats++
		default:
			fluid++
		}
	}
	return bound, floats, fluid
}

// builder assigns ids in creation order: boundaries, floating bodies, fluid.
type builder struct {
	g     Geometry
	parts []particles.Particle
	next  uint32
}

func (b *builder) add(code dynamo.TypeCode, pos dynamo.Double3, vel dynamo.Float3) {
	b.parts = append(b.parts, particles.Particle{
		Id:   b.next,
		Code: code,
		Pos:  pos,
		Vel:  vel,
		Rhop: float32(b.g.Rhop0),
	})
	b.next++
}

// lattice calls fn for every node of a cubic lattice of spacing dp filling
// [lo, hi] inclusive.
func lattice(lo, hi dynamo.Double3, dp float64, fn func(p dynamo.Double3)) {
	n := func(a, b float64) int { return int(math.Floor((b-a)/dp+1e-6)) + 1 }
	nx, ny, nz := n(lo.X, hi.X), n(lo.Y, hi.Y), n(lo.Z, hi.Z)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				fn(dynamo.Double3{X: lo.X + float64(i)*dp, Y: lo.Y + float64(j)*dp, Z: lo.Z + float64(k)*dp})
			}
		}
	}
}

// tank lays fixed particles under the floor and outside the walls. The
// fluid region starts at the origin. Walls normal to periodic axes are left
// out.
func (b *builder) tank(openX bool) {
	dp, l := b.g.Dp, float64(b.g.Layers)
	t := b.g.Tank
	lo := dynamo.Double3{X: -l * dp, Y: -l * dp, Z: -l * dp}
	hi := dynamo.Double3{X: t.X + (l-1)*dp, Y: t.Y + (l-1)*dp, Z: t.Z}
	if openX {
		lo.X, hi.X = dp/2, t.X-dp/2
	}
	code := dynamo.NewCode(dynamo.CodeFixed, 0)
	lattice(lo, hi, dp, func(p dynamo.Double3) {
		inside := p.Z > -dp/2 && p.Y > -dp/2 && p.Y < t.Y-dp/2
		if !openX {
			inside = inside && p.X > -dp/2 && p.X < t.X-dp/2
		}
		if !inside {
			b.add(code, p, dynamo.Float3{})
		}
	})
}

// DamBreak places a fluid column in one corner of a closed tank.
func DamBreak(g Geometry) (*Case, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	b := &builder{g: g}
	b.tank(false)
	hi := g.Fluid.Sub(dynamo.Double3{X: g.Dp, Y: g.Dp, Z: g.Dp})
	lattice(dynamo.Double3{}, hi, g.Dp, func(p dynamo.Double3) {
		b.add(dynamo.NewCode(dynamo.CodeFluid, 0), p, dynamo.Float3{})
	})
	return &Case{
		Name:        "dambreak",
		Dp:          g.Dp,
		Particles:   b.parts,
		FluidHeight: g.Fluid.Z,
		Min:         dynamo.Double3{X: -float64(g.Layers) * g.Dp, Y: -float64(g.Layers) * g.Dp, Z: -float64(g.Layers) * g.Dp},
		Max:         g.Tank,
	}, nil
}

// FloatingBox floats a solid box half submerged at the centre of a tank
// filled to the fluid height. Fluid particles inside the box are removed.
func FloatingBox(g Geometry) (*Case, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.Body.X < g.Dp || g.Body.Y < g.Dp || g.Body.Z < g.Dp {
		return nil, fmt.Errorf("cases: floating box %v is smaller than dp", g.Body)
	}
	if g.BodyDensity <= 0 {
		return nil, fmt.Errorf("cases: body density must be positive, got %g", g.BodyDensity)
	}
	b := &builder{g: g}
	b.tank(false)
	nbound := len(b.parts)

	center := dynamo.Double3{X: g.Tank.X / 2, Y: g.Tank.Y / 2, Z: g.Fluid.Z}
	half := g.Body.Scale(0.5)
	lo, hi := center.Sub(half), center.Add(half)
	lo = snap(lo, g.Dp)
	lattice(lo, hi, g.Dp, func(p dynamo.Double3) {
		b.add(dynamo.NewCode(dynamo.CodeFloating, 0), p, dynamo.Float3{})
	})
	np := len(b.parts) - nbound
	if np == 0 {
		return nil, fmt.Errorf("cases: floating box %v holds no particles at dp %g", g.Body, g.Dp)
	}

	fhi := g.Fluid.Sub(dynamo.Double3{X: g.Dp, Y: g.Dp, Z: g.Dp})
	pad := g.Dp / 2
	lattice(dynamo.Double3{}, fhi, g.Dp, func(p dynamo.Double3) {
		if p.X > lo.X-pad && p.X < hi.X+pad && p.Y > lo.Y-pad && p.Y < hi.Y+pad && p.Z > lo.Z-pad && p.Z < hi.Z+pad {
			return
		}
		b.add(dynamo.NewCode(dynamo.CodeFluid, 0), p, dynamo.Float3{})
	})

	var sum dynamo.Double3
	for _, p := range b.parts[nbound : nbound+np] {
		sum = sum.Add(p.Pos)
	}
	c := sum.Scale(1 / float64(np))
	mass := g.BodyDensity * g.Body.X * g.Body.Y * g.Body.Z

	mats := floating.NewMaterialTable()
	steel, err := floating.NewMaterial(0, 210e9, 0.35, 0.35, 0.8)
	if err != nil {
		return nil, err
	}
	wood, err := floating.NewMaterial(mass, 11e9, 0.35, 0.45, 0.6)
	if err != nil {
		return nil, err
	}
	mats.SetBound(0, steel)
	mats.SetFloating(0, wood)

	return &Case{
		Name:      "floating",
		Dp:        g.Dp,
		Particles: b.parts,
		Bodies: []floating.Body{{
			Id:     0,
			Pini:   0,
			Np:     np,
			Mass:   mass,
			Center: r3.Vec{X: c.X, Y: c.Y, Z: c.Z},
		}},
		Materials:   mats,
		FluidHeight: g.Fluid.Z,
		Min:         dynamo.Double3{X: -float64(g.Layers) * g.Dp, Y: -float64(g.Layers) * g.Dp, Z: -float64(g.Layers) * g.Dp},
		Max:         g.Tank,
	}, nil
}

// WaveMaker drives a piston paddle at the x=0 end of a closed tank with a
// sinusoidal stroke along x. The paddle is as thick as the boundary and the
// fluid block starts right behind it.
func WaveMaker(g Geometry) (*Case, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.PaddleAmp <= 0 || g.PaddleFreq <= 0 {
		return nil, fmt.Errorf("cases: paddle stroke needs a positive amplitude and frequency, got %g m at %g hz", g.PaddleAmp, g.PaddleFreq)
	}
	thick := float64(g.Layers-1) * g.Dp
	if g.Fluid.X < thick+2*g.Dp {
		return nil, fmt.Errorf("cases: fluid block %v leaves no room behind the paddle", g.Fluid)
	}

	b := &builder{g: g}
	b.tank(false)
	paddle := dynamo.NewCode(dynamo.CodeMoving, 0)
	lattice(dynamo.Double3{}, dynamo.Double3{X: thick, Y: g.Tank.Y - g.Dp, Z: g.Tank.Z - g.Dp}, g.Dp, func(p dynamo.Double3) {
		b.add(paddle, p, dynamo.Float3{})
	})
	hi := g.Fluid.Sub(dynamo.Double3{X: g.Dp, Y: g.Dp, Z: g.Dp})
	lattice(dynamo.Double3{X: thick + g.Dp}, hi, g.Dp, func(p dynamo.Double3) {
		b.add(dynamo.NewCode(dynamo.CodeFluid, 0), p, dynamo.Float3{})
	})

	return &Case{
		Name:      "wavemaker",
		Dp:        g.Dp,
		Particles: b.parts,
		Motions: map[int]motion.Motion{
			0: motion.Sine{Amp: dynamo.Double3{X: g.PaddleAmp}, Freq: g.PaddleFreq},
		},
		FluidHeight: g.Fluid.Z,
		Min:         dynamo.Double3{X: -float64(g.Layers) * g.Dp, Y: -float64(g.Layers) * g.Dp, Z: -float64(g.Layers) * g.Dp},
		Max:         g.Tank,
	}, nil
}

// snap moves p up to the nearest lattice node of spacing dp.
func snap(p dynamo.Double3, dp float64) dynamo.Double3 {
	f := func(x float64) float64 { return math.Ceil(x/dp-1e-6) * dp }
	return dynamo.Double3{X: f(p.X), Y: f(p.Y), Z: f(p.Z)}
}

// PeriodicChannel fills a channel that is periodic along x with a moving
// fluid layer. Particles sit at half-spacing offsets from the periodic faces
// so that wrapped neighbours keep the lattice spacing.
func PeriodicChannel(g Geometry) (*Case, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	b := &builder{g: g}
	b.tank(true)
	vel := dynamo.Float3{X: float32(g.Velocity)}
	lo := dynamo.Double3{X: g.Dp / 2}
	hi := dynamo.Double3{X: g.Tank.X - g.Dp/2, Y: g.Fluid.Y - g.Dp, Z: g.Fluid.Z - g.Dp}
	lattice(lo, hi, g.Dp, func(p dynamo.Double3) {
		b.add(dynamo.NewCode(dynamo.CodeFluid, 0), p, vel)
	})
	l := float64(g.Layers)
	return &Case{
		Name:      "channel",
		Dp:        g.Dp,
		Particles: b.parts,
		Periodic: particles.Periodic{
			X:   true,
			Min: dynamo.Double3{X: 0, Y: -l * g.Dp, Z: -l * g.Dp},
			Max: dynamo.Double3{X: g.Tank.X, Y: g.Tank.Y + l*g.Dp, Z: g.Tank.Z},
		},
		FluidHeight: g.Fluid.Z,
		Min:         dynamo.Double3{X: 0, Y: -l * g.Dp, Z: -l * g.Dp},
		Max:         g.Tank,
	}, nil
}
