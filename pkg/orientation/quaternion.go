// Package orientation converts between the representations of a 3D crystal
// rotation used during reconstruction: Bunge Euler angles, unit quaternions,
// axis-angle pairs, Rodrigues vectors, homochoric vectors and rotation
// matrices.
//
// All angles are in radians. Quaternions are gonum quat.Number values with the
// scalar part in Real. Every function is pure and never fails: degenerate
// inputs (a zero rotation angle or a zero-length axis) fall back to the
// conventional axis (0,0,1).
package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Identity is the zero rotation.
var Identity = quat.Number{Real: 1}

// DefaultAxis is reported whenever a rotation axis is undefined.
var DefaultAxis = r3.Vec{X: 0, Y: 0, Z: 1}

// Multiply returns the Hamilton product q1⊗q2.
//
// The operand order is significant: the result applies q2 first and then q1
// when both are read as active rotations. Every caller in this module goes
// through this function so that the convention is defined in one place.
func Multiply(q1, q2 quat.Number) quat.Number {
	return quat.Mul(q1, q2)
}

// Invert returns the inverse of a unit quaternion (its conjugate).
func Invert(q quat.Number) quat.Number {
	return quat.Conj(q)
}

// Normalize scales q to unit length. A zero quaternion yields Identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Positive returns the representative of ±q with a non-negative scalar part.
func Positive(q quat.Number) quat.Number {
	if q.Real < 0 {
		return quat.Scale(-1, q)
	}
	return q
}

// Dot is the 4D inner product of two quaternions.
func Dot(q1, q2 quat.Number) float64 {
	return q1.Real*q2.Real + q1.Imag*q2.Imag + q1.Jmag*q2.Jmag + q1.Kmag*q2.Kmag
}

// RotationAngle is the rotation angle of a unit quaternion in [0, 2π].
func RotationAngle(q quat.Number) float64 {
	return 2 * math.Acos(clamp(q.Real))
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func vectorPart(q quat.Number) r3.Vec {
	return r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}
