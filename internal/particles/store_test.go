package particles

import (
	"testing"

	"github.com/san-kum/dynsph/internal/compute"
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, deviceLimit int64, opts Options) *Store {
	t.Helper()
	rt := compute.NewRuntime(compute.NewCPUBackend(deviceLimit, 2), 0, nil)
	t.Cleanup(rt.Close)
	return New(rt, opts)
}

func fluidLine(n int, x0, dx float64) []Particle {
	parts := make([]Particle, n)
	for i := range parts {
		parts[i] = Particle{
			Id:   uint32(i),
			Code: dynamo.NewCode(dynamo.CodeFluid, 0),
			Pos:  dynamo.Double3{X: x0 + float64(i)*dx, Y: 0.5, Z: 0.5},
			Vel:  dynamo.Float3{X: float32(i)},
			Rhop: 1000 + float32(i),
		}
	}
	return parts
}

func TestAllocationScenario(t *testing.T) {
	st := newStore(t, 0, Options{Mirror: MirrorVerlet})
	require.NoError(t, st.AllocateParticles(950, 0.05))

	assert.Equal(t, 1000, st.DeviceCapacity())
	assert.Equal(t, 1000, st.HostCapacity())
	assert.Equal(t, 48, st.Margin())

	resized, err := st.EnsureCapacity(950)
	require.NoError(t, err)
	assert.False(t, resized)

	resized, err = st.EnsureCapacity(1200)
	require.NoError(t, err)
	assert.True(t, resized)
	assert.GreaterOrEqual(t, st.DeviceCapacity(), 1200+st.Margin())
	assert.Zero(t, st.DeviceCapacity()%Granularity)
	assert.Equal(t, st.DeviceCapacity(), st.HostCapacity())
}

// fillColumn writes values unique to seed into every live element of c.
func fillColumn(t *testing.T, c compute.Column, seed int) {
	t.Helper()
	for i := 0; i < c.Len(); i++ {
		v := float64(seed*1000 + i)
		switch b := c.(type) {
		case *compute.Buffer[uint32]:
			b.Live()[i] = uint32(v)
		case *compute.Buffer[dynamo.TypeCode]:
			b.Live()[i] = dynamo.NewCode(dynamo.CodeFluid, i%4)
		case *compute.Buffer[float64]:
			b.Live()[i] = v + 0.25
		case *compute.Buffer[dynamo.Double2]:
			b.Live()[i] = dynamo.Double2{X: v, Y: -v}
		case *compute.Buffer[dynamo.Float4]:
			b.Live()[i] = dynamo.Float4{X: float32(v), Y: 1, Z: 2, W: float32(seed)}
		default:
			t.Fatalf("unexpected column kind %v", c.Kind())
		}
	}
}

func liveCopy(t *testing.T, c compute.Column) any {
	t.Helper()
	switch b := c.(type) {
	case *compute.Buffer[uint32]:
		return append([]uint32(nil), b.Live()...)
	case *compute.Buffer[dynamo.TypeCode]:
		return append([]dynamo.TypeCode(nil), b.Live()...)
	case *compute.Buffer[float64]:
		return append([]float64(nil), b.Live()...)
	case *compute.Buffer[dynamo.Double2]:
		return append([]dynamo.Double2(nil), b.Live()...)
	case *compute.Buffer[dynamo.Float4]:
		return append([]dynamo.Float4(nil), b.Live()...)
	}
	t.Fatalf("unexpected column kind %v", c.Kind())
	return nil
}

func TestResizePreservesParticles(t *testing.T) {
	tests := []struct {
		name    string
		mirror  Mirror
		columns int
	}{
		{"verlet", MirrorVerlet, 9},
		{"symplectic", MirrorSymplectic, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t, 0, Options{Mirror: tt.mirror, Margin: 8, Temperature: true})
			require.NoError(t, st.AllocateParticles(16, 0))
			require.NoError(t, st.Upload(fluidLine(10, 0, 0.1)))

			cols := st.deviceColumns()
			require.Len(t, cols, tt.columns)
			before := make([]any, len(cols))
			for k, c := range cols {
				fillColumn(t, c, k+1)
				before[k] = liveCopy(t, c)
			}

			resized, err := st.EnsureCapacity(500)
			require.NoError(t, err)
			require.True(t, resized)
			assert.Equal(t, 10, st.Counts().Np)

			after := st.deviceColumns()
			require.Len(t, after, len(cols))
			for k, c := range after {
				assert.GreaterOrEqual(t, c.Cap(), 500+st.Margin())
				assert.Equal(t, before[k], liveCopy(t, c), "column %d", k)
			}
		})
	}
}

func TestCapacityInvariantAfterUpload(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		alloc    int
		overprov float64
		np       int
	}{
		{"small overprovision", Options{}, 7, 0.1, 7},
		{"configured margin", Options{Margin: 64}, 100, 0, 100},
		{"rounded margin", Options{}, 961, 0.05, 961},
		{"upload beyond estimate", Options{Margin: 8}, 16, 0, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t, 0, tt.opts)
			require.NoError(t, st.AllocateParticles(tt.alloc, tt.overprov))
			require.NoError(t, st.Upload(fluidLine(tt.np, 0, 0.01)))

			need := st.Counts().Np + st.Margin()
			assert.GreaterOrEqual(t, st.HostCapacity(), need)
			assert.GreaterOrEqual(t, st.DeviceCapacity(), need)
			assert.Zero(t, st.DeviceCapacity()%Granularity)

			resized, err := st.EnsureCapacity(tt.np)
			require.NoError(t, err)
			assert.False(t, resized)
		})
	}
}

func TestResizeFailureLeavesStoreIntact(t *testing.T) {
	st := newStore(t, 150_000, Options{Mirror: MirrorVerlet})
	require.NoError(t, st.AllocateParticles(1000, 0))
	require.NoError(t, st.Upload(fluidLine(100, 0, 0.01)))

	_, usedBefore := st.MemoryUsage()
	velBefore := append([]dynamo.Float4(nil), st.Dev().Velrhop.Live()...)

	resized, err := st.EnsureCapacity(1200)
	require.Error(t, err)
	assert.False(t, resized)
	assert.ErrorIs(t, err, dynamo.ErrOutOfMemory)

	var ae *dynamo.AllocError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "device", ae.Side)

	_, usedAfter := st.MemoryUsage()
	assert.Equal(t, usedBefore, usedAfter)
	assert.Equal(t, 1000, st.DeviceCapacity())
	assert.Equal(t, velBefore, st.Dev().Velrhop.Live())
	assert.NoError(t, st.Guard("after failed resize"))
}

func TestAllocateFixedTwice(t *testing.T) {
	st := newStore(t, 0, Options{})
	require.NoError(t, st.AllocateFixed(FixedSizes{FloatingBodies: 1, FloatingParticles: 2}))

	err := st.AllocateFixed(FixedSizes{FloatingBodies: 1, FloatingParticles: 2})
	assert.ErrorIs(t, err, dynamo.ErrSequence)
}

func TestGuardDuringResize(t *testing.T) {
	st := newStore(t, 0, Options{})
	require.NoError(t, st.AllocateParticles(8, 0))

	st.resizing.Store(true)
	err := st.Upload(fluidLine(4, 0, 0.1))
	assert.ErrorIs(t, err, dynamo.ErrSequence)

	st.resizing.Store(false)
	assert.NoError(t, st.Upload(fluidLine(4, 0, 0.1)))
}

func TestUploadOrdersBoundaryFirst(t *testing.T) {
	st := newStore(t, 0, Options{Mirror: MirrorVerlet})
	require.NoError(t, st.AllocateParticles(8, 0))

	parts := fluidLine(3, 0, 0.1)
	parts = append(parts, Particle{Id: 10, Code: dynamo.NewCode(dynamo.CodeFixed, 0), Rhop: 1000})
	require.NoError(t, st.Upload(parts))

	c := st.Counts()
	assert.Equal(t, 4, c.Np)
	assert.Equal(t, 1, c.Npb)
	assert.True(t, c.Valid())

	sn, err := st.Snapshot(0, c.Np, FieldIdp|FieldCode|FieldVel)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 0, 1, 2}, sn.Idp)
	assert.True(t, sn.Code[0].IsBound())
	assert.Equal(t, st.Dev().Velrhop.Live(), st.Dev().VelrhopM1.Live())
}

func TestFloatingRidp(t *testing.T) {
	st := newStore(t, 0, Options{})
	require.NoError(t, st.AllocateFixed(FixedSizes{FloatingBodies: 1, FloatingParticles: 2}))
	require.NoError(t, st.AllocateParticles(8, 0))

	parts := fluidLine(3, 0, 0.1)
	parts = append(parts,
		Particle{Id: 21, Code: dynamo.NewCode(dynamo.CodeFloating, 0)},
		Particle{Id: 20, Code: dynamo.NewCode(dynamo.CodeFloating, 0)},
	)
	require.NoError(t, st.Upload(parts))

	assert.Equal(t, uint32(20), st.FtIdBegin())
	assert.Equal(t, []uint32{4, 3}, st.FtRidp())
}

func TestDownloadOnlyNormal(t *testing.T) {
	st := newStore(t, 0, Options{})
	require.NoError(t, st.AllocateParticles(16, 0))
	require.NoError(t, st.Upload(fluidLine(3, 0.05, 0.45)))

	cfg := Periodic{X: true, Max: dynamo.Double3{X: 1, Y: 1, Z: 1}, Width: 0.1}
	require.NoError(t, st.RunPeriodic(cfg))
	np := st.Counts().Np
	require.Greater(t, np, 3)

	n, err := st.Download(0, np, true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, st.Host().Idp.Len())

	n, err = st.Download(0, np, false)
	require.NoError(t, err)
	assert.Equal(t, np, n)
}

func TestFreeReleasesAllMemory(t *testing.T) {
	st := newStore(t, 0, Options{Mirror: MirrorSymplectic, Temperature: true, Shifting: true})
	require.NoError(t, st.AllocateFixed(FixedSizes{FloatingBodies: 2, FloatingParticles: 10}))
	require.NoError(t, st.AllocateParticles(100, 0.1))

	host, dev := st.MemoryUsage()
	assert.Positive(t, host)
	assert.Positive(t, dev)

	st.Free()
	host, dev = st.MemoryUsage()
	assert.Zero(t, host)
	assert.Zero(t, dev)
	assert.Zero(t, st.DeviceCapacity())
	require.NoError(t, st.AllocateFixed(FixedSizes{}))
}
