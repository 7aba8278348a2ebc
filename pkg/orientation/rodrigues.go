package orientation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Rodrigues is the Rodrigues-Frank vector tan(ω/2)·n.
type Rodrigues = r3.Vec

// AxisAngleToRodrigues converts an axis-angle pair to a Rodrigues vector. A
// half-turn maps to a very long but finite vector.
func AxisAngleToRodrigues(a AxisAngle) Rodrigues {
	axis := unitOrDefault(a.Axis)
	return r3.Scale(math.Tan(0.5*a.Angle), axis)
}

// RodriguesToAxisAngle is the inverse of AxisAngleToRodrigues.
func RodriguesToAxisAngle(r Rodrigues) AxisAngle {
	n := r3.Norm(r)
	if n < 1e-12 {
		return AxisAngle{Axis: DefaultAxis, Angle: 0}
	}
	return AxisAngle{Axis: r3.Scale(1/n, r), Angle: 2 * math.Atan(n)}
}

// RodriguesToEuler converts a Rodrigues vector to Bunge Euler angles.
func RodriguesToEuler(r Rodrigues) Euler {
	return QuaternionToEuler(AxisAngleToQuaternion(RodriguesToAxisAngle(r)))
}

// EulerToRodrigues converts Bunge Euler angles to a Rodrigues vector.
func EulerToRodrigues(e Euler) Rodrigues {
	return AxisAngleToRodrigues(QuaternionToAxisAngle(Positive(EulerToQuaternion(e))))
}
