package floating

import (
	"math"
	"testing"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var center = r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}

// cube returns a store holding one floating body of 8 particles at the
// corners of a cube around center.
func cube(t *testing.T, mirror particles.Mirror) (*particles.Store, *Coupler) {
	t.Helper()
	rt := compute.NewRuntime(compute.NewCPUBackend(0, 2), 0, nil)
	t.Cleanup(rt.Close)

	st := particles.New(rt, particles.Options{Mirror: mirror})
	require.NoError(t, st.AllocateFixed(particles.FixedSizes{FloatingBodies: 1, FloatingParticles: 8}))
	require.NoError(t, st.AllocateParticles(8, 0))

	var parts []particles.Particle
	for i := 0; i < 8; i++ {
		off := func(bit int) float64 {
			if i&(1<<bit) != 0 {
				return 0.1
			}
			return -0.1
		}
		parts = append(parts, particles.Particle{
			Id:   uint32(100 + i),
			Code: dynamo.NewCode(dynamo.CodeFloating, 0),
			Pos:  dynamo.Double3{X: center.X + off(0), Y: center.Y + off(1), Z: center.Z + off(2)},
			Rhop: 1000,
		})
	}
	require.NoError(t, st.Upload(parts))

	c, err := NewCoupler(st, []Body{{Id: 0, Pini: 0, Np: 8, Mass: 4, Center: center}})
	require.NoError(t, err)
	require.NoError(t, c.Init())
	return st, c
}

func setAce(st *particles.Store, fn func(i int, p dynamo.Double3) dynamo.Float3) {
	d := st.Dev()
	xy, z := d.Posxy.Data(), d.Posz.Data()
	for i := 0; i < st.Counts().Np; i++ {
		d.Ace.Data()[i] = fn(i, dynamo.Double3{X: xy[i].X, Y: xy[i].Y, Z: z[i]})
	}
}

func TestUniformForceReduction(t *testing.T) {
	st, c := cube(t, particles.MirrorVerlet)
	assert.Equal(t, []float32{0.5}, st.FtoMassp())

	setAce(st, func(int, dynamo.Double3) dynamo.Float3 { return dynamo.Float3{Z: -2} })
	require.NoError(t, c.Accumulate())

	force, torque := c.Load(0)
	assert.InDelta(t, 8.0, r3.Norm(force), 1e-9)
	assert.InDelta(t, -8.0, force.Z, 1e-9)
	assert.InDelta(t, 0.0, r3.Norm(torque), 1e-9)
}

func TestInertiaFromParticles(t *testing.T) {
	_, c := cube(t, particles.MirrorVerlet)
	b := c.Bodies()[0]

	// 8 * 0.5 * (0.1^2 + 0.1^2) on the diagonal, products cancel.
	for k := 0; k < 3; k++ {
		assert.InDelta(t, 0.08, b.Inertia0.At(k, k), 1e-12)
	}
	assert.InDelta(t, 0.0, b.Inertia0.At(0, 1), 1e-12)
}

func TestAdvanceTranslation(t *testing.T) {
	st, c := cube(t, particles.MirrorVerlet)
	setAce(st, func(int, dynamo.Double3) dynamo.Float3 { return dynamo.Float3{Z: -2} })

	const dt = 0.01
	require.NoError(t, c.Advance(dt, false, true))

	b := c.Bodies()[0]
	assert.InDelta(t, -0.02, b.Fvel.Z, 1e-12)
	assert.InDelta(t, center.Z-0.5*2*dt*dt, b.Center.Z, 1e-12)
	assert.InDelta(t, 0.0, r3.Norm(b.Fomega), 1e-12)

	sn, err := st.Snapshot(0, 8, particles.FieldPos|particles.FieldVel)
	require.NoError(t, err)
	for i := range sn.Vel {
		assert.InDelta(t, -0.02, float64(sn.Vel[i].Z), 1e-6)
	}
	assert.InDelta(t, 0.4-0.0001, sn.Pos[0].Z, 1e-9)
}

func TestAdvanceRotation(t *testing.T) {
	st, c := cube(t, particles.MirrorVerlet)
	// Tangential push in the xy plane about the z axis.
	setAce(st, func(i int, p dynamo.Double3) dynamo.Float3 {
		return dynamo.Float3{X: float32(-(p.Y - center.Y)), Y: float32(p.X - center.X)}
	})

	require.NoError(t, c.Advance(0.01, false, true))
	b := c.Bodies()[0]
	assert.Greater(t, b.Fomega.Z, 0.0)
	assert.InDelta(t, 0.0, b.Fomega.X, 1e-12)
	assert.InDelta(t, 0.0, r3.Norm(b.Fvel), 1e-12)

	sn, err := st.Snapshot(0, 8, particles.FieldPos|particles.FieldVel)
	require.NoError(t, err)
	for i := range sn.Pos {
		r := r3.Sub(r3.Vec{X: sn.Pos[i].X, Y: sn.Pos[i].Y, Z: sn.Pos[i].Z}, b.Center)
		want := r3.Cross(b.Fomega, r)
		assert.InDelta(t, want.X, float64(sn.Vel[i].X), 1e-6)
		assert.InDelta(t, want.Y, float64(sn.Vel[i].Y), 1e-6)
		// Rigid motion keeps the distance to the centre.
		assert.InDelta(t, math.Sqrt(0.03), r3.Norm(r), 1e-9)
	}
}

func TestPredictorDoesNotCommit(t *testing.T) {
	st, c := cube(t, particles.MirrorSymplectic)
	setAce(st, func(int, dynamo.Double3) dynamo.Float3 { return dynamo.Float3{X: 1} })

	require.NoError(t, c.Advance(0.005, true, false))
	assert.Equal(t, center, c.Bodies()[0].Center)
	assert.Zero(t, c.Bodies()[0].Fvel.X)

	require.NoError(t, c.Advance(0.01, true, true))
	assert.InDelta(t, 0.01, c.Bodies()[0].Fvel.X, 1e-12)
}

func TestNewCouplerRejectsGaps(t *testing.T) {
	rt := compute.NewRuntime(compute.NewCPUBackend(0, 1), 0, nil)
	defer rt.Close()
	st := particles.New(rt, particles.Options{})

	_, err := NewCoupler(st, []Body{{Pini: 2, Np: 4, Mass: 1}})
	assert.Error(t, err)
	_, err = NewCoupler(st, []Body{{Pini: 0, Np: 4, Mass: 0}})
	assert.Error(t, err)
}

func TestContactForce(t *testing.T) {
	steel, err := NewMaterial(10, 2e11, 0.3, 0.4, 0.8)
	require.NoError(t, err)
	wall, err := NewMaterial(0, 2e11, 0.3, 0.4, 0.8)
	require.NoError(t, err)
	assert.InDelta(t, (1-0.09)/2e11, steel.Tau, 1e-24)

	normal := r3.Vec{Z: 1}
	none := ContactForce(steel, wall, Contact{Overlap: -0.001, Radius: 0.01, Normal: normal})
	assert.Equal(t, r3.Vec{}, none)

	f := ContactForce(steel, wall, Contact{Overlap: 1e-4, Radius: 0.01, Normal: normal})
	assert.Greater(t, f.Z, 0.0)
	assert.Zero(t, f.X)

	sliding := ContactForce(steel, wall, Contact{Overlap: 1e-4, Radius: 0.01, Normal: normal, RelVel: r3.Vec{X: 1}})
	assert.Less(t, sliding.X, 0.0)
	assert.InDelta(t, 0.4*sliding.Z, -sliding.X, 1e-6*sliding.Z)
}

func TestMaterialValidation(t *testing.T) {
	_, err := NewMaterial(1, 0, 0.3, 0.1, 0.5)
	assert.Error(t, err)
	_, err = NewMaterial(1, 1e9, 0.3, 0.1, 1.5)
	assert.Error(t, err)
}

func TestMaterialLookup(t *testing.T) {
	table := NewMaterialTable()
	m := Material{Mass: 1, Tau: 1}
	table.SetFloating(2, m)
	table.SetBound(0, Material{Tau: 2})

	got, ok := table.Lookup(dynamo.NewCode(dynamo.CodeFloating, 2))
	assert.True(t, ok)
	assert.Equal(t, m, got)

	_, ok = table.Lookup(dynamo.NewCode(dynamo.CodeFluid, 0))
	assert.False(t, ok)
	assert.Equal(t, 2, table.Len())
}
