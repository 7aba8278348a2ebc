package symmetry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SignatureTolerance is the per-component tolerance used when matching a
// misorientation's Rodrigues vector against a special boundary signature.
const SignatureTolerance = 0.03

// Signature is a set of Rodrigues component magnitudes. A misorientation
// matches when each absolute component is within SignatureTolerance of the
// corresponding entry.
type Signature [3]float64

func (s Signature) matches(r r3.Vec) bool {
	return math.Abs(math.Abs(r.X)-s[0]) < SignatureTolerance &&
		math.Abs(math.Abs(r.Y)-s[1]) < SignatureTolerance &&
		math.Abs(math.Abs(r.Z)-s[2]) < SignatureTolerance
}

const third = 1.0 / 3.0

// TwinSignatures are the cubic Σ3, Σ5, Σ9-type relationships.
var TwinSignatures = []Signature{
	{third, third, third},
	{third, 0, 0}, {0, third, 0}, {0, 0, third},
	{third, third, 0}, {third, 0, third}, {0, third, third},
	{0.2, 0.2, 0.2},
	{0.25, 0.25, 0}, {0.25, 0, 0.25}, {0, 0.25, 0.25},
}

// ColonySignatures are the hexagonal Burgers-type relationships between
// α laths of one colony.
var ColonySignatures = []Signature{
	{0, 0, 0.0919},
	{0.289, 0.5, 0},
	{0.57735, 0, 0},
	{0.33, 0.473, 0.093},
	{0.577, 0.053, 0.093},
	{0.293, 0.508, 0.188},
	{0.5866, 0, 0.188},
	{0.5769, 0.8168, 0},
	{0.9958, 0.0912, 0},
}

func matchAny(sigs []Signature, m Result) bool {
	r := m.Rodrigues()
	for _, s := range sigs {
		if s.matches(r) {
			return true
		}
	}
	return false
}

// IsTwin reports whether a misorientation is a twin relationship.
func IsTwin(m Result) bool { return matchAny(TwinSignatures, m) }

// IsColony reports whether a misorientation relates two laths of a colony.
func IsColony(m Result) bool { return matchAny(ColonySignatures, m) }
