package particles

import (
	"testing"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func periodicBox() Periodic {
	return Periodic{
		X:     true,
		Min:   dynamo.Double3{},
		Max:   dynamo.Double3{X: 1, Y: 1, Z: 1},
		Width: 0.1,
	}
}

func periodicCase() []Particle {
	parts := []Particle{
		{Id: 0, Code: dynamo.NewCode(dynamo.CodeFixed, 0), Pos: dynamo.Double3{X: 0.02, Y: 0.5}},
		{Id: 1, Code: dynamo.NewCode(dynamo.CodeFluid, 0), Pos: dynamo.Double3{X: 0.05, Y: 0.5}},
		{Id: 2, Code: dynamo.NewCode(dynamo.CodeFluid, 0), Pos: dynamo.Double3{X: 0.5, Y: 0.5}},
		{Id: 3, Code: dynamo.NewCode(dynamo.CodeFluid, 0), Pos: dynamo.Double3{X: 0.95, Y: 0.5}},
	}
	return parts
}

func TestRunPeriodicLayout(t *testing.T) {
	st := newStore(t, 0, Options{Mirror: MirrorVerlet})
	require.NoError(t, st.AllocateParticles(16, 0))
	require.NoError(t, st.Upload(periodicCase()))

	require.NoError(t, st.RunPeriodic(periodicBox()))

	c := st.Counts()
	assert.Equal(t, 7, c.Np)
	assert.Equal(t, 2, c.Npb)
	assert.Equal(t, 1, c.NpbPer)
	assert.Equal(t, 2, c.NpfPer)
	assert.Equal(t, c.Np, c.Npb+c.Nfluid())
	assert.True(t, c.Valid())
	assert.True(t, st.BoundChanged())

	sn, err := st.Snapshot(0, c.Np, FieldIdp|FieldCode|FieldPos)
	require.NoError(t, err)

	assert.False(t, sn.Code[0].IsPeriodic())
	assert.True(t, sn.Code[1].IsPeriodic() && sn.Code[1].IsBound())
	assert.InDelta(t, 1.02, sn.Pos[1].X, 1e-12)
	for i := 2; i < 5; i++ {
		assert.False(t, sn.Code[i].IsPeriodic(), "index %d", i)
	}
	for i := 5; i < 7; i++ {
		assert.True(t, sn.Code[i].IsPeriodic(), "index %d", i)
	}
	assert.Equal(t, []uint32{1, 3}, sn.Idp[5:])
	assert.InDelta(t, 1.05, sn.Pos[5].X, 1e-12)
	assert.InDelta(t, -0.05, sn.Pos[6].X, 1e-12)
}

func TestRunPeriodicIsRepeatable(t *testing.T) {
	st := newStore(t, 0, Options{Mirror: MirrorSymplectic})
	require.NoError(t, st.AllocateParticles(16, 0))
	require.NoError(t, st.Upload(periodicCase()))

	require.NoError(t, st.RunPeriodic(periodicBox()))
	first := st.Counts()
	require.NoError(t, st.RunPeriodic(periodicBox()))
	second := st.Counts()

	assert.Equal(t, first.Np, second.Np)
	assert.Equal(t, first.NpbPer, second.NpbPerM1)
	assert.Equal(t, first.NpfPer, second.NpfPerM1)
	assert.False(t, st.BoundChanged())
}

func TestRunPeriodicResizesOnce(t *testing.T) {
	st := newStore(t, 0, Options{Mirror: MirrorVerlet, Margin: 4})
	require.NoError(t, st.AllocateParticles(4, 0))
	require.Equal(t, 8, st.DeviceCapacity())
	require.NoError(t, st.Upload(periodicCase()))

	require.NoError(t, st.RunPeriodic(periodicBox()))
	assert.Equal(t, 16, st.DeviceCapacity())
	assert.Equal(t, 7, st.Counts().Np)
	assert.Equal(t, 7, st.Dev().VelrhopM1.Len())
}

func TestWrapPeriodic(t *testing.T) {
	st := newStore(t, 0, Options{})
	require.NoError(t, st.AllocateParticles(8, 0))
	parts := periodicCase()
	parts[3].Pos.X = 1.02
	parts[1].Pos.X = -0.01
	require.NoError(t, st.Upload(parts))

	moved, err := st.WrapPeriodic(periodicBox())
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	sn, err := st.Snapshot(0, 4, FieldPos)
	require.NoError(t, err)
	assert.InDelta(t, 0.99, sn.Pos[1].X, 1e-12)
	assert.InDelta(t, 0.02, sn.Pos[3].X, 1e-12)
}

func TestPeriodicValidate(t *testing.T) {
	p := periodicBox()
	assert.NoError(t, p.Validate())
	p.Width = 0.6
	assert.Error(t, p.Validate())
}
