package cases

import (
	"testing"

	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geometry() Geometry {
	return Geometry{
		Dp:          0.1,
		Tank:        dynamo.Double3{X: 1.0, Y: 0.5, Z: 0.6},
		Fluid:       dynamo.Double3{X: 0.4, Y: 0.5, Z: 0.3},
		Body:        dynamo.Double3{X: 0.2, Y: 0.2, Z: 0.2},
		BodyDensity: 500,
		Velocity:    0.5,
		Layers:      2,
		Rhop0:       1000,
	}
}

func TestDamBreakLayout(t *testing.T) {
	c, err := DamBreak(geometry())
	require.NoError(t, err)

	bound, floats, fluid := c.Count()
	assert.Equal(t, 4*5*3, fluid)
	assert.Zero(t, floats)
	assert.Positive(t, bound)
	assert.Equal(t, 0.3, c.FluidHeight)

	seen := make(map[uint32]bool)
	for i, p := range c.Particles {
		assert.Equal(t, uint32(i), p.Id)
		assert.False(t, seen[p.Id])
		seen[p.Id] = true
		assert.Equal(t, float32(1000), p.Rhop)
		if p.Code.IsFluid() {
			assert.GreaterOrEqual(t, p.Pos.X, 0.0)
			assert.GreaterOrEqual(t, p.Pos.Z, 0.0)
		}
	}
}

func TestFloatingBoxIdsContiguous(t *testing.T) {
	c, err := FloatingBox(geometry())
	require.NoError(t, err)
	require.Len(t, c.Bodies, 1)

	_, floats, _ := c.Count()
	body := c.Bodies[0]
	assert.Equal(t, floats, body.Np)
	assert.InDelta(t, 500*0.2*0.2*0.2, body.Mass, 1e-9)
	assert.Equal(t, 2, c.Materials.Len())

	first := -1
	for _, p := range c.Particles {
		if p.Code.IsFloating() && (first < 0 || int(p.Id) < first) {
			first = int(p.Id)
		}
	}
	require.GreaterOrEqual(t, first, 0)
	for _, p := range c.Particles {
		if p.Code.IsFloating() {
			k := int(p.Id) - first
			assert.True(t, k >= 0 && k < body.Np, "floating id %d outside [%d,%d)", p.Id, first, first+body.Np)
		}
	}

	// no fluid particle overlaps the body
	for _, p := range c.Particles {
		if !p.Code.IsFluid() {
			continue
		}
		for _, q := range c.Particles {
			if q.Code.IsFloating() {
				assert.Greater(t, p.Pos.Sub(q.Pos).Norm(), 0.05)
			}
		}
	}
}

func TestPeriodicChannel(t *testing.T) {
	g := geometry()
	c, err := PeriodicChannel(g)
	require.NoError(t, err)

	assert.True(t, c.Periodic.X)
	assert.False(t, c.Periodic.Y)
	for _, p := range c.Particles {
		assert.Greater(t, p.Pos.X, c.Periodic.Min.X)
		assert.Less(t, p.Pos.X, c.Periodic.Max.X)
		if p.Code.IsFluid() {
			assert.Equal(t, float32(0.5), p.Vel.X)
		}
	}
}

func TestWaveMakerLayout(t *testing.T) {
	g := geometry()
	g.PaddleAmp, g.PaddleFreq = 0.05, 1
	c, err := WaveMaker(g)
	require.NoError(t, err)

	var moving, fluid int
	for _, p := range c.Particles {
		switch {
		case p.Code.Class() == dynamo.CodeMoving:
			moving++
			assert.Equal(t, 0, p.Code.Object())
			assert.LessOrEqual(t, p.Pos.X, 0.1+1e-9)
		case p.Code.IsFluid():
			fluid++
			assert.GreaterOrEqual(t, p.Pos.X, 0.2-1e-9)
		}
	}
	assert.Equal(t, 2*5*6, moving)
	assert.Equal(t, 2*5*3, fluid)

	require.Contains(t, c.Motions, 0)
	d := c.Motions[0].Displacement(0, 0.25)
	assert.InDelta(t, 0.05, d.X, 1e-12)
	assert.Zero(t, d.Z)

	g.PaddleFreq = 0
	_, err = WaveMaker(g)
	assert.Error(t, err)
}

func TestGeometryValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Geometry)
	}{
		{"zero dp", func(g *Geometry) { g.Dp = 0 }},
		{"fluid outside tank", func(g *Geometry) { g.Fluid.X = 2 }},
		{"no layers", func(g *Geometry) { g.Layers = 0 }},
		{"no density", func(g *Geometry) { g.Rhop0 = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := geometry()
			tt.mutate(&g)
			assert.Error(t, g.Validate())
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"channel", "dambreak", "floating", "wavemaker"}, r.List())

	c, err := r.Build("dambreak", geometry())
	require.NoError(t, err)
	assert.Equal(t, "dambreak", c.Name)

	_, err = r.Build("sloshing", geometry())
	assert.EqualError(t, err, "unknown case: sloshing")
}
