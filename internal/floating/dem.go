package floating

import (
	"fmt"
	"math"

	"github.com/san-kum/dynsph/internal/dynamo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Material holds the contact parameters of one object.
type Material struct {
	// Mass of the object. Zero or negative marks an immovable object.
	Mass    float64
	Tau     float64
	Kfric   float64
	Restitu float64
}

// NewMaterial derives tau = (1-poisson^2)/young.
func NewMaterial(mass, young, poisson, kfric, restitu float64) (Material, error) {
	if young <= 0 {
		return Material{}, fmt.Errorf("floating: young modulus must be positive, got %g", young)
	}
	if restitu <= 0 || restitu > 1 {
		return Material{}, fmt.Errorf("floating: restitution must be in (0,1], got %g", restitu)
	}
	return Material{
		Mass:    mass,
		Tau:     (1 - poisson*poisson) / young,
		Kfric:   kfric,
		Restitu: restitu,
	}, nil
}

// MaterialTable maps object indices to materials, separately for boundary
// objects and floating bodies. It is read-only once the run starts.
type MaterialTable struct {
	bound    map[int]Material
	floating map[int]Material
}

func NewMaterialTable() *MaterialTable {
	return &MaterialTable{bound: make(map[int]Material), floating: make(map[int]Material)}
}

func (t *MaterialTable) SetBound(obj int, m Material)     { t.bound[obj] = m }
func (t *MaterialTable) SetFloating(body int, m Material) { t.floating[body] = m }

func (t *MaterialTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.bound) + len(t.floating)
}

// Lookup returns the material of the object a particle belongs to.
func (t *MaterialTable) Lookup(code dynamo.TypeCode) (Material, bool) {
	if t == nil {
		return Material{}, false
	}
	var m Material
	var ok bool
	switch {
	case code.IsFloating():
		m, ok = t.floating[code.Object()]
	case code.IsBound():
		m, ok = t.bound[code.Object()]
	}
	return m, ok
}

// Contact describes one particle pair in contact. Normal points from b to a
// and RelVel is va - vb.
type Contact struct {
	Overlap float64
	Radius  float64
	Normal  r3.Vec
	RelVel  r3.Vec
}

// ContactForce returns the force on a: Hertz normal stiffness with damping
// from the restitution coefficient and Coulomb friction.
func ContactForce(a, b Material, c Contact) r3.Vec {
	if c.Overlap <= 0 {
		return r3.Vec{}
	}
	estar := 1 / (a.Tau + b.Tau)
	rstar := c.Radius / 2
	mstar := effectiveMass(a.Mass, b.Mass)

	kn := 4.0 / 3.0 * estar * math.Sqrt(rstar)
	sn := 2 * estar * math.Sqrt(rstar*c.Overlap)

	e := (a.Restitu + b.Restitu) / 2
	le := math.Log(e)
	beta := le / math.Sqrt(le*le+math.Pi*math.Pi)
	gn := -2 * math.Sqrt(5.0/6.0) * beta * math.Sqrt(sn*mstar)

	vn := r3.Dot(c.RelVel, c.Normal)
	fn := kn*math.Pow(c.Overlap, 1.5) - gn*vn
	if fn < 0 {
		fn = 0
	}
	force := r3.Scale(fn, c.Normal)

	vt := r3.Sub(c.RelVel, r3.Scale(vn, c.Normal))
	if nt := r3.Norm(vt); nt > 1e-12 {
		mu := (a.Kfric + b.Kfric) / 2
		force = r3.Add(force, r3.Scale(-mu*fn/nt, vt))
	}
	return force
}

func effectiveMass(ma, mb float64) float64 {
	switch {
	case ma <= 0 && mb <= 0:
		return 0
	case ma <= 0:
		return mb
	case mb <= 0:
		return ma
	}
	return ma * mb / (ma + mb)
}
