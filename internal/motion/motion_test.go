package motion

import (
	"math"
	"testing"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, parts []particles.Particle) *particles.Store {
	t.Helper()
	rt := compute.NewRuntime(compute.NewCPUBackend(0, 2), 0, nil)
	t.Cleanup(rt.Close)
	st := particles.New(rt, particles.Options{Mirror: particles.MirrorVerlet})
	require.NoError(t, st.AllocateParticles(len(parts), 0))
	require.NoError(t, st.Upload(parts))
	return st
}

func part(id uint32, class dynamo.TypeCode, obj int, x float64) particles.Particle {
	return particles.Particle{Id: id, Code: dynamo.NewCode(class, obj), Pos: dynamo.Double3{X: x, Z: 0.5}, Rhop: 1000}
}

func TestLinearWindow(t *testing.T) {
	l := Linear{Vel: dynamo.Double3{X: 2}, Start: 1, Stop: 2}
	tests := []struct {
		t0, t1 float64
		want   float64
	}{
		{0, 0.5, 0},
		{0.5, 1.5, 1},
		{1.2, 1.4, 0.4},
		{1.8, 2.5, 0.4},
		{3, 4, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, l.Displacement(tt.t0, tt.t1).X, 1e-12, "[%g,%g)", tt.t0, tt.t1)
	}
}

func TestSineStepsSumToPath(t *testing.T) {
	s := Sine{Amp: dynamo.Double3{X: 0.1, Z: 0.02}, Freq: 1.5, Phase: 0.3}
	var x, z float64
	dt := 1e-3
	for k := 0; k < 700; k++ {
		d := s.Displacement(float64(k)*dt, float64(k+1)*dt)
		x += d.X
		z += d.Z
	}
	path := math.Sin(2*math.Pi*1.5*0.7+0.3) - math.Sin(0.3)
	assert.InDelta(t, 0.1*path, x, 1e-12)
	assert.InDelta(t, 0.02*path, z, 1e-12)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Linear{}.Validate())
	assert.Error(t, Linear{Start: 2, Stop: 1}.Validate())
	assert.Error(t, Linear{Start: -1}.Validate())
	assert.Error(t, Sine{Freq: 0}.Validate())
	assert.NoError(t, Sine{Freq: 2, Start: 0.5}.Validate())
}

func TestRunMovesOnlyItsObject(t *testing.T) {
	st := newStore(t, []particles.Particle{
		part(0, dynamo.CodeFixed, 0, 0),
		part(1, dynamo.CodeMoving, 0, 0.1),
		part(2, dynamo.CodeMoving, 1, 0.2),
		part(3, dynamo.CodeFluid, 0, 0.3),
	})
	m := New(st)
	require.NoError(t, m.Add(0, Linear{Vel: dynamo.Double3{X: 0.5, Y: -0.25}}))
	assert.Error(t, m.Add(dynamo.MaxObjects, Linear{}))
	assert.Error(t, m.Add(1, Sine{}))
	assert.Equal(t, 1, m.Len())

	moves := m.Calc(0, 0.1)
	require.Len(t, moves, 1)
	assert.InDelta(t, 0.05, moves[0].Disp.X, 1e-12)
	require.NoError(t, m.Run(moves))
	require.NoError(t, m.Run(m.Calc(0.1, 0.1)))

	sn, err := st.Snapshot(0, 4, particles.FieldIdp|particles.FieldPos|particles.FieldVel)
	require.NoError(t, err)
	byId := make(map[uint32]int)
	for i, id := range sn.Idp {
		byId[id] = i
	}

	moved := byId[1]
	assert.InDelta(t, 0.2, sn.Pos[moved].X, 1e-12)
	assert.InDelta(t, -0.05, sn.Pos[moved].Y, 1e-12)
	assert.InDelta(t, 0.5, sn.Vel[moved].X, 1e-6)
	assert.InDelta(t, -0.25, sn.Vel[moved].Y, 1e-6)

	for _, id := range []uint32{0, 2, 3} {
		i := byId[id]
		assert.Zero(t, sn.Pos[i].Y, "particle %d", id)
		assert.Equal(t, dynamo.Float3{}, sn.Vel[i], "particle %d", id)
	}
	assert.InDelta(t, 0.2, sn.Pos[byId[2]].X, 1e-12)
	assert.Contains(t, st.Runtime().Timers.Report(), compute.TimerMotion)
}

func TestRunStopsObjectAfterWindow(t *testing.T) {
	st := newStore(t, []particles.Particle{part(0, dynamo.CodeMoving, 3, 0)})
	m := New(st)
	require.NoError(t, m.Add(3, Linear{Vel: dynamo.Double3{Z: 1}, Stop: 0.1}))

	require.NoError(t, m.Run(m.Calc(0, 0.05)))
	require.NoError(t, m.Run(m.Calc(0.05, 0.1)))
	require.NoError(t, m.Run(m.Calc(0.15, 0.1)))

	sn, err := st.Snapshot(0, 1, particles.FieldPos|particles.FieldVel)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, sn.Pos[0].Z, 1e-12)
	assert.Zero(t, sn.Vel[0].Z)
}
