package dynamo

import (
	"fmt"
	"math"
)

type Float3 struct {
	X, Y, Z float32
}

func (v Float3) Add(o Float3) Float3 { return Float3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Float3) Sub(o Float3) Float3 { return Float3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Float3) Scale(f float32) Float3 { return Float3{v.X * f, v.Y * f, v.Z * f} }

func (v Float3) Norm2() float32 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

// Float4 packs a vector with one extra scalar: velocity+density in Velrhop,
// position+pressure in PsPospress.
type Float4 struct {
	X, Y, Z, W float32
}

func (v Float4) Vec() Float3 { return Float3{v.X, v.Y, v.Z} }

func (v Float4) Norm2() float32 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

// Double2 is the horizontal part of a particle position. The vertical
// coordinate lives in its own float64 array.
type Double2 struct {
	X, Y float64
}

type Double3 struct {
	X, Y, Z float64
}

func (v Double3) Add(o Double3) Double3 { return Double3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Double3) Sub(o Double3) Double3 { return Double3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Double3) Scale(f float64) Double3 { return Double3{v.X * f, v.Y * f, v.Z * f} }

func (v Double3) Norm() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

func (v Double3) Float() Float3 { return Float3{float32(v.X), float32(v.Y), float32(v.Z)} }

func (v Float3) Double() Double3 { return Double3{float64(v.X), float64(v.Y), float64(v.Z)} }

// TypeCode packs the particle class, the periodic duplicate flag and the
// object index (floating body id) into one field.
//
//	bits 14-15  class
//	bit  13     periodic duplicate
//	bits 0-10   object index
type TypeCode uint16

const (
	CodeFixed    TypeCode = 0
	CodeMoving   TypeCode = 1 << 14
	CodeFloating TypeCode = 2 << 14
	CodeFluid    TypeCode = 3 << 14

	codeClassMask TypeCode = 3 << 14
	codePeriodic  TypeCode = 1 << 13
	codeObjMask   TypeCode = 1<<11 - 1

	MaxObjects = int(codeObjMask) + 1
)

// NewCode builds a code for class with object index obj.
func NewCode(class TypeCode, obj int) TypeCode {
	return class&codeClassMask | TypeCode(obj)&codeObjMask
}

func (c TypeCode) Class() TypeCode { return c & codeClassMask }
func (c TypeCode) Object() int     { return int(c & codeObjMask) }

func (c TypeCode) IsBound() bool    { return c.Class() == CodeFixed || c.Class() == CodeMoving }
func (c TypeCode) IsFloating() bool { return c.Class() == CodeFloating }
func (c TypeCode) IsFluid() bool    { return c.Class() == CodeFluid }

func (c TypeCode) IsPeriodic() bool { return c&codePeriodic != 0 }

// AsPeriodic marks a duplicate created across a periodic face.
func (c TypeCode) AsPeriodic() TypeCode { return c | codePeriodic }

// Normal clears the periodic flag.
func (c TypeCode) Normal() TypeCode { return c &^ codePeriodic }

func (c TypeCode) String() string {
	var class string
	switch c.Class() {
	case CodeFixed:
		class = "fixed"
	case CodeMoving:
		class = "moving"
	case CodeFloating:
		class = "floating"
	default:
		class = "fluid"
	}
	if c.IsPeriodic() {
		return fmt.Sprintf("%s:%d(per)", class, c.Object())
	}
	return fmt.Sprintf("%s:%d", class, c.Object())
}

// Counts describes the live index layout of the particle store:
// [normal bound | periodic bound | normal floating+fluid | periodic floating+fluid].
type Counts struct {
	Np       int
	Npb      int
	NpbOk    int
	NpbPer   int
	NpfPer   int
	NpbPerM1 int
	NpfPerM1 int
}

func (c Counts) Nfluid() int { return c.Np - c.Npb }

// Valid reports whether Np = Npb + Nfluid and the periodic counts fit their ranges.
func (c Counts) Valid() bool {
	return c.Np >= c.Npb && c.NpbOk <= c.Npb && c.NpbPer <= c.Npb && c.NpfPer <= c.Nfluid()
}

// Extrema are the global reductions of one force evaluation.
type Extrema struct {
	VelMax    float64
	AceMax    float64
	ViscDtMax float64
}

// CellBits is the width of each axis in a packed cell key.
const CellBits = 10

const cellMask = 1<<CellBits - 1

// PackCell packs non-negative cell coordinates into one key, x in the low
// bits. Coordinates are clamped to the representable range.
func PackCell(x, y, z int) uint32 {
	clamp := func(c int) uint32 { return uint32(max(0, min(c, cellMask))) }
	return clamp(x) | clamp(y)<<CellBits | clamp(z)<<(2*CellBits)
}

func UnpackCell(key uint32) (x, y, z int) {
	return int(key & cellMask), int(key >> CellBits & cellMask), int(key >> (2 * CellBits) & cellMask)
}
