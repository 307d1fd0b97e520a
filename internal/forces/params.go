package forces

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/dynsph/internal/dynamo"
)

// ShiftMode selects which neighbours contribute to the shifting gradient.
type ShiftMode int

const (
	ShiftNone ShiftMode = iota
	ShiftNoBound
	ShiftNoFixed
	ShiftFull
)

func (m ShiftMode) String() string {
	switch m {
	case ShiftNoBound:
		return "nobound"
	case ShiftNoFixed:
		return "nofixed"
	case ShiftFull:
		return "full"
	}
	return "none"
}

func ParseShiftMode(s string) (ShiftMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ShiftNone, nil
	case "nobound":
		return ShiftNoBound, nil
	case "nofixed":
		return ShiftNoFixed, nil
	case "full":
		return ShiftFull, nil
	}
	return ShiftNone, fmt.Errorf("forces: unknown shifting mode %q", s)
}

// Params are the physical constants of the interaction kernels.
type Params struct {
	H          float64
	Dp         float64
	Simulate2D bool

	MassFluid float32
	MassBound float32
	Rhop0     float32
	Gamma     float32
	Cs0       float32
	Gravity   dynamo.Float3

	// Visco is the artificial viscosity coefficient.
	Visco float32
	// DeltaSph is the density diffusion coefficient, zero disables it.
	DeltaSph float32
	// Diffusivity drives conduction of the optional scalar field.
	Diffusivity float32

	Shift     ShiftMode
	ShiftCoef float32
	ShiftTfs  float32

	Dem bool
}

// Support is the kernel support radius, 2h.
func (p Params) Support() float64 { return 2 * p.H }

// Cteb is the Tait equation constant cs0^2 rho0 / gamma.
func (p Params) Cteb() float32 { return p.Cs0 * p.Cs0 * p.Rhop0 / p.Gamma }

// Pressure evaluates the Tait equation of state.
func (p Params) Pressure(rhop float32) float32 {
	return p.Cteb() * (float32(math.Pow(float64(rhop/p.Rhop0), float64(p.Gamma))) - 1)
}

// wendland returns the normalisation constant of the Wendland kernel.
func (p Params) wendland() float64 {
	if p.Simulate2D {
		return 7 / (4 * math.Pi * p.H * p.H)
	}
	return 21 / (16 * math.Pi * p.H * p.H * p.H)
}

// Kernel evaluates the Wendland kernel at distance r.
func (p Params) Kernel(r float64) float64 {
	q := r / p.H
	if q >= 2 {
		return 0
	}
	w := 1 - q/2
	return p.wendland() * (1 + 2*q) * w * w * w * w
}

// GradFactor returns fac such that grad W = fac * (ri - rj).
func (p Params) GradFactor(r float64) float64 {
	q := r / p.H
	if q >= 2 || r == 0 {
		return 0
	}
	w := 1 - q/2
	return -5 * p.wendland() * q * w * w * w / (p.H * r)
}

func (p Params) Validate() error {
	switch {
	case p.H <= 0:
		return fmt.Errorf("forces: h must be positive, got %g", p.H)
	case p.Dp <= 0:
		return fmt.Errorf("forces: dp must be positive, got %g", p.Dp)
	case p.Rhop0 <= 0 || p.Gamma <= 0 || p.Cs0 <= 0:
		return fmt.Errorf("forces: rhop0, gamma and cs0 must be positive")
	case p.MassFluid <= 0 || p.MassBound <= 0:
		return fmt.Errorf("forces: particle masses must be positive")
	case p.Shift != ShiftNone && p.ShiftCoef <= 0:
		return fmt.Errorf("forces: shifting coefficient must be positive, got %g", p.ShiftCoef)
	}
	return nil
}
