package integrators

import (
	"testing"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/particles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tb interface {
	require.TestingT
	Cleanup(func())
}

func newStore(t tb, mirror particles.Mirror, parts []particles.Particle) *particles.Store {
	rt := compute.NewRuntime(compute.NewCPUBackend(0, 2), 0, nil)
	t.Cleanup(rt.Close)
	st := particles.New(rt, particles.Options{Mirror: mirror, Margin: 8})
	require.NoError(t, st.AllocateParticles(len(parts), 0))
	require.NoError(t, st.Upload(parts))
	return st
}

func fluid(id uint32, pos dynamo.Double3) particles.Particle {
	return particles.Particle{Id: id, Code: dynamo.NewCode(dynamo.CodeFluid, 0), Pos: pos, Rhop: 1000}
}

func setAce(st *particles.Store, a dynamo.Float3) {
	ace := st.Dev().Ace.Data()
	for i := 0; i < st.Counts().Np; i++ {
		ace[i] = a
	}
}

func TestVerletFreeFall(t *testing.T) {
	st := newStore(t, particles.MirrorVerlet, []particles.Particle{fluid(0, dynamo.Double3{Y: 1})})
	in, err := New(st, Config{Scheme: SchemeVerlet, VerletSteps: 2, Rhop0: 1000})
	require.NoError(t, err)

	for step := 0; step < 2; step++ {
		setAce(st, dynamo.Float3{Y: -9.8})
		final, err := in.Verlet(0.01)
		require.NoError(t, err)
		assert.True(t, final)
	}

	sn, err := st.Snapshot(0, 1, particles.FieldVel|particles.FieldPos)
	require.NoError(t, err)
	assert.InDelta(t, -0.196, sn.Vel[0].Y, 1e-6)
	assert.InDelta(t, 1-9.8*0.0001-0.098*0.01, sn.Pos[0].Y, 1e-6)
	assert.Equal(t, StateVerlet, in.State())
}

func TestVerletStationaryWithoutForces(t *testing.T) {
	parts := []particles.Particle{
		{Id: 0, Code: dynamo.NewCode(dynamo.CodeFixed, 0), Pos: dynamo.Double3{}, Rhop: 1000},
		fluid(1, dynamo.Double3{X: 0.1}),
		fluid(2, dynamo.Double3{X: 0.2}),
	}
	st := newStore(t, particles.MirrorVerlet, parts)
	in, err := New(st, Config{Scheme: SchemeVerlet, VerletSteps: 40, Rhop0: 1000})
	require.NoError(t, err)

	before, err := st.Snapshot(0, 3, particles.FieldAll)
	require.NoError(t, err)
	for step := 0; step < 5; step++ {
		_, err := in.Verlet(1e-3)
		require.NoError(t, err)
	}
	after, err := st.Snapshot(0, 3, particles.FieldAll)
	require.NoError(t, err)
	assert.Equal(t, before.Particles(), after.Particles())
}

func TestBoundaryDensityClamped(t *testing.T) {
	parts := []particles.Particle{{Id: 0, Code: dynamo.NewCode(dynamo.CodeFixed, 0), Rhop: 1000}}
	st := newStore(t, particles.MirrorVerlet, parts)
	in, err := New(st, Config{Scheme: SchemeVerlet, Rhop0: 1000})
	require.NoError(t, err)

	st.Dev().Ar.Data()[0] = -500
	_, err = in.Verlet(0.01)
	require.NoError(t, err)
	assert.Equal(t, float32(1000), st.Dev().Velrhop.Data()[0].W)

	st.Dev().Ar.Data()[0] = 500
	_, err = in.Verlet(0.01)
	require.NoError(t, err)
	assert.Greater(t, st.Dev().Velrhop.Data()[0].W, float32(1000))
}

func TestSymplecticRoundTripAtRest(t *testing.T) {
	st := newStore(t, particles.MirrorSymplectic, []particles.Particle{fluid(0, dynamo.Double3{X: 0.3, Y: 0.4, Z: 0.5})})
	in, err := New(st, Config{Scheme: SchemeSymplectic, Rhop0: 1000})
	require.NoError(t, err)

	before, err := st.Snapshot(0, 1, particles.FieldAll)
	require.NoError(t, err)

	final, err := in.Predictor(0.01)
	require.NoError(t, err)
	assert.False(t, final)
	final, err = in.Corrector(0.01)
	require.NoError(t, err)
	assert.True(t, final)

	after, err := st.Snapshot(0, 1, particles.FieldAll)
	require.NoError(t, err)
	assert.Equal(t, before.Particles(), after.Particles())
}

func TestSymplecticConstantAcceleration(t *testing.T) {
	st := newStore(t, particles.MirrorSymplectic, []particles.Particle{fluid(0, dynamo.Double3{})})
	in, err := New(st, Config{Scheme: SchemeSymplectic, Rhop0: 1000})
	require.NoError(t, err)

	setAce(st, dynamo.Float3{Z: -10})
	_, err = in.Predictor(0.1)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, st.Dev().Velrhop.Data()[0].Z, 1e-6)

	setAce(st, dynamo.Float3{Z: -10})
	_, err = in.Corrector(0.1)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, st.Dev().Velrhop.Data()[0].Z, 1e-6)
	assert.InDelta(t, -0.05, st.Dev().Posz.Data()[0], 1e-7)
}

func TestCorrectorWithoutPredictor(t *testing.T) {
	st := newStore(t, particles.MirrorSymplectic, []particles.Particle{fluid(0, dynamo.Double3{})})
	in, err := New(st, Config{Scheme: SchemeSymplectic, Rhop0: 1000})
	require.NoError(t, err)

	_, err = in.Corrector(0.01)
	require.ErrorIs(t, err, dynamo.ErrSequence)

	var se *dynamo.SequenceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Corrector", se.Op)
	assert.Equal(t, StatePredictor, in.State())
}

func TestNewRejectsMismatchedMirror(t *testing.T) {
	st := newStore(t, particles.MirrorVerlet, []particles.Particle{fluid(0, dynamo.Double3{})})
	_, err := New(st, Config{Scheme: SchemeSymplectic, Rhop0: 1000})
	assert.Error(t, err)
	_, err = New(st, Config{Scheme: SchemeVerlet})
	assert.Error(t, err)
}

func TestAccInputWindow(t *testing.T) {
	st := newStore(t, particles.MirrorVerlet, []particles.Particle{fluid(0, dynamo.Double3{}), fluid(1, dynamo.Double3{X: 1})})
	in, err := New(st, Config{Scheme: SchemeVerlet, Rhop0: 1000})
	require.NoError(t, err)
	require.NoError(t, in.AddAccInput(AccInput{Class: dynamo.CodeFluid, Start: 1, End: 2, Acc: dynamo.Float3{X: 3}}))
	assert.Error(t, in.AddAccInput(AccInput{Class: dynamo.CodeFixed, Start: 1, End: 2}))

	require.NoError(t, in.ApplyAccInputs(0.5))
	require.NoError(t, st.Runtime().Device.Synchronize())
	assert.Zero(t, st.Dev().Ace.Data()[0].X)

	require.NoError(t, in.ApplyAccInputs(1.5))
	require.NoError(t, st.Runtime().Device.Synchronize())
	assert.Equal(t, float32(3), st.Dev().Ace.Data()[0].X)
	assert.Equal(t, float32(3), st.Dev().Ace.Data()[1].X)
}

func TestDampingZone(t *testing.T) {
	parts := []particles.Particle{fluid(0, dynamo.Double3{X: 0.5}), fluid(1, dynamo.Double3{X: 2})}
	for i := range parts {
		parts[i].Vel = dynamo.Float3{X: 1}
	}
	st := newStore(t, particles.MirrorVerlet, parts)
	in, err := New(st, Config{Scheme: SchemeVerlet, Rhop0: 1000})
	require.NoError(t, err)
	require.NoError(t, in.AddDamping(DampingZone{Origin: dynamo.Double3{X: 1}, Normal: dynamo.Double3{X: 2}, Width: 0.5, Redumax: 10}))
	assert.Error(t, in.AddDamping(DampingZone{Width: 1}))

	require.NoError(t, in.RunDamping(0.05))
	vr := st.Dev().Velrhop.Data()
	assert.Equal(t, float32(1), vr[0].X)
	assert.InDelta(t, 0.5, vr[1].X, 1e-6)
}

func TestParseScheme(t *testing.T) {
	tests := []struct {
		in   string
		want Scheme
		err  bool
	}{
		{"verlet", SchemeVerlet, false},
		{"Symplectic", SchemeSymplectic, false},
		{"", SchemeVerlet, false},
		{"rk4", SchemeVerlet, true},
	}
	for _, tt := range tests {
		got, err := ParseScheme(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
