package symmetry

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Operators is the fixed table of rotations that leave a crystal lattice
// unchanged. Get(0) is always the identity.
type Operators interface {
	Count() int
	Get(i int) quat.Number
}

type table []quat.Number

func (t table) Count() int            { return len(t) }
func (t table) Get(i int) quat.Number { return t[i] }

var (
	r2 = 1 / math.Sqrt2
	h3 = math.Sqrt(3) / 2
)

func q(w, x, y, z float64) quat.Number {
	return quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
}

var cubicOps = table{
	q(1, 0, 0, 0),
	// 180° about the cube axes
	q(0, 1, 0, 0), q(0, 0, 1, 0), q(0, 0, 0, 1),
	// ±90° about the cube axes
	q(r2, r2, 0, 0), q(r2, 0, r2, 0), q(r2, 0, 0, r2),
	q(r2, -r2, 0, 0), q(r2, 0, -r2, 0), q(r2, 0, 0, -r2),
	// 180° about the face diagonals
	q(0, r2, r2, 0), q(0, -r2, r2, 0), q(0, 0, r2, r2),
	q(0, 0, -r2, r2), q(0, r2, 0, r2), q(0, -r2, 0, r2),
	// ±120° about the body diagonals
	q(0.5, 0.5, 0.5, 0.5), q(0.5, -0.5, -0.5, -0.5),
	q(0.5, 0.5, -0.5, 0.5), q(0.5, -0.5, 0.5, -0.5),
	q(0.5, -0.5, 0.5, 0.5), q(0.5, 0.5, -0.5, -0.5),
	q(0.5, -0.5, -0.5, 0.5), q(0.5, 0.5, 0.5, -0.5),
}

var hexagonalOps = table{
	q(1, 0, 0, 0),
	// 60° steps about c
	q(h3, 0, 0, 0.5), q(0.5, 0, 0, h3), q(0, 0, 0, 1),
	q(-0.5, 0, 0, h3), q(-h3, 0, 0, 0.5),
	// basal two-folds
	q(0, 1, 0, 0), q(0, h3, 0.5, 0), q(0, 0.5, h3, 0),
	q(0, 0, 1, 0), q(0, -0.5, h3, 0), q(0, -h3, 0.5, 0),
}

var trigonalOps = table{
	q(1, 0, 0, 0),
	q(0.5, 0, 0, h3), q(-0.5, 0, 0, h3),
	q(0, 1, 0, 0), q(0, -0.5, h3, 0), q(0, 0.5, h3, 0),
}

var orthoOps = table{
	q(1, 0, 0, 0),
	q(0, 1, 0, 0), q(0, 0, 1, 0), q(0, 0, 0, 1),
}

var tetragonalOps = table{
	q(1, 0, 0, 0),
	q(r2, 0, 0, r2), q(0, 0, 0, 1), q(-r2, 0, 0, r2),
	q(0, 1, 0, 0), q(0, 0, 1, 0), q(0, r2, r2, 0), q(0, r2, -r2, 0),
}

// OperatorsFor returns the operator table of a crystal structure. The tables
// are shared and must not be modified.
func OperatorsFor(c CrystalStructure) (Operators, error) {
	switch c {
	case Cubic:
		return cubicOps, nil
	case Hexagonal:
		return hexagonalOps, nil
	case OrthoRhombic:
		return orthoOps, nil
	case Trigonal:
		return trigonalOps, nil
	case Tetragonal:
		return tetragonalOps, nil
	default:
		return nil, ErrUnknownCrystalStructure
	}
}
