package symmetry

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"ebsdrecon/pkg/orientation"
)

// Result is a misorientation: the smallest rotation angle in [0, π] relating
// two orientations and its unit axis.
type Result struct {
	Angle float64
	Axis  r3.Vec
}

// Rodrigues returns the misorientation as a Rodrigues vector.
func (r Result) Rodrigues() orientation.Rodrigues {
	return orientation.AxisAngleToRodrigues(orientation.AxisAngle{Axis: r.Axis, Angle: r.Angle})
}

// Degrees returns the angle in degrees.
func (r Result) Degrees() float64 {
	return r.Angle * 180 / math.Pi
}

// Misorientation computes the minimum misorientation between q1 and q2 under
// the point group of c.
//
// With qr = q2⁻¹⊗q1, every qc = qr⊗qs is tried for the operators qs of c. The
// first minimum wins on ties. Misorientation(a, b, c) and
// Misorientation(b, a, c) have the same angle.
func Misorientation(q1, q2 quat.Number, c CrystalStructure) (Result, error) {
	ops, err := OperatorsFor(c)
	if err != nil {
		return Result{}, err
	}
	return MisorientationWith(ops, q1, q2), nil
}

// MisorientationWith is Misorientation with an operator table that has
// already been resolved. It is used by inner loops that validated the phase
// table up front.
func MisorientationWith(ops Operators, q1, q2 quat.Number) Result {
	qr := orientation.Multiply(orientation.Invert(q2), q1)
	best := Result{Angle: math.Inf(1), Axis: orientation.DefaultAxis}
	var bestQ quat.Number
	for i := 0; i < ops.Count(); i++ {
		qc := orientation.Multiply(qr, ops.Get(i))
		// A negative scalar part means an angle above π; the negated
		// quaternion is the same rotation folded to 2π−ω about −n.
		if qc.Real < 0 {
			qc = quat.Scale(-1, qc)
		}
		w := 2 * math.Atan2(math.Sqrt(qc.Imag*qc.Imag+qc.Jmag*qc.Jmag+qc.Kmag*qc.Kmag), qc.Real)
		if w < best.Angle {
			best.Angle = w
			bestQ = qc
		}
	}
	best.Axis = orientation.QuaternionToAxisAngle(bestQ).Axis
	return best
}

// NearestEquivalent returns the symmetric equivalent of q closest to ref,
// signed so that its 4D dot product with ref is non-negative. Averaging
// orientations only makes sense after this correction.
func NearestEquivalent(ref, q quat.Number, c CrystalStructure) (quat.Number, error) {
	ops, err := OperatorsFor(c)
	if err != nil {
		return quat.Number{}, err
	}
	return NearestEquivalentWith(ops, ref, q), nil
}

// NearestEquivalentWith is NearestEquivalent with a resolved operator table.
func NearestEquivalentWith(ops Operators, ref, q quat.Number) quat.Number {
	best := q
	bestDot := -1.0
	for i := 0; i < ops.Count(); i++ {
		qc := orientation.Multiply(q, ops.Get(i))
		d := math.Abs(orientation.Dot(ref, qc))
		if d > bestDot {
			bestDot = d
			best = qc
		}
	}
	if orientation.Dot(ref, best) < 0 {
		best = quat.Scale(-1, best)
	}
	return best
}

// FundamentalZone returns the equivalent of q with the smallest rotation
// angle, with a non-negative scalar part.
func FundamentalZone(q quat.Number, c CrystalStructure) (quat.Number, error) {
	ops, err := OperatorsFor(c)
	if err != nil {
		return quat.Number{}, err
	}
	best := q
	bestNorm := math.Inf(1)
	for i := 0; i < ops.Count(); i++ {
		qc := orientation.Multiply(q, ops.Get(i))
		n := qc.Imag*qc.Imag + qc.Jmag*qc.Jmag + qc.Kmag*qc.Kmag
		if n < bestNorm {
			bestNorm = n
			best = qc
		}
	}
	return orientation.Positive(best), nil
}
