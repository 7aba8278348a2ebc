package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// AxisAngle is a rotation of Angle radians about the unit vector Axis.
type AxisAngle struct {
	Axis  r3.Vec
	Angle float64
}

// QuaternionToAxisAngle returns the rotation angle in [0, 2π] and the unit
// rotation axis of q.
func QuaternionToAxisAngle(q quat.Number) AxisAngle {
	angle := RotationAngle(q)
	v := vectorPart(q)
	n := r3.Norm(v)
	if angle == 0 || n < 1e-12 {
		return AxisAngle{Axis: DefaultAxis, Angle: angle}
	}
	return AxisAngle{Axis: r3.Scale(1/n, v), Angle: angle}
}

// AxisAngleToQuaternion builds the unit quaternion for a rotation. The axis
// need not be normalised; a zero axis means no rotation about DefaultAxis.
func AxisAngleToQuaternion(a AxisAngle) quat.Number {
	axis := unitOrDefault(a.Axis)
	s := math.Sin(0.5 * a.Angle)
	return quat.Number{
		Real: math.Cos(0.5 * a.Angle),
		Imag: s * axis.X,
		Jmag: s * axis.Y,
		Kmag: s * axis.Z,
	}
}

func unitOrDefault(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n < 1e-12 {
		return DefaultAxis
	}
	return r3.Scale(1/n, v)
}
