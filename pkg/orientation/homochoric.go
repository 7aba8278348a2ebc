package orientation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Homochoric is the equal-volume vector (3/4·(ω − sin ω))^(1/3)·n.
type Homochoric = r3.Vec

// homochoricMax is the length of the homochoric vector for ω = π.
var homochoricMax = math.Cbrt(0.75 * math.Pi)

// AxisAngleToHomochoric maps an axis-angle pair into homochoric space.
func AxisAngleToHomochoric(a AxisAngle) Homochoric {
	axis, w := canonical(a)
	return r3.Scale(homochoricLength(w), axis)
}

// RodriguesToHomochoric maps a Rodrigues vector into homochoric space.
func RodriguesToHomochoric(r Rodrigues) Homochoric {
	return AxisAngleToHomochoric(RodriguesToAxisAngle(r))
}

// HomochoricToRodrigues is the inverse of RodriguesToHomochoric. The rotation
// angle is recovered by bisection because the homochoric length has no closed
// form inverse.
func HomochoricToRodrigues(h Homochoric) Rodrigues {
	return AxisAngleToRodrigues(HomochoricToAxisAngle(h))
}

// HomochoricToAxisAngle recovers the axis-angle pair of a homochoric vector.
// Lengths beyond the ball of radius (3π/4)^(1/3) are treated as half-turns.
func HomochoricToAxisAngle(h Homochoric) AxisAngle {
	n := r3.Norm(h)
	if n < 1e-12 {
		return AxisAngle{Axis: DefaultAxis, Angle: 0}
	}
	axis := r3.Scale(1/n, h)
	if n >= homochoricMax {
		return AxisAngle{Axis: axis, Angle: math.Pi}
	}
	lo, hi := 0.0, math.Pi
	for i := 0; i < 64; i++ {
		mid := 0.5 * (lo + hi)
		if homochoricLength(mid) < n {
			lo = mid
		} else {
			hi = mid
		}
	}
	return AxisAngle{Axis: axis, Angle: 0.5 * (lo + hi)}
}

func homochoricLength(w float64) float64 {
	return math.Cbrt(0.75 * (w - math.Sin(w)))
}

// canonical returns the unit axis and an angle in [0, π] describing the same
// rotation as a.
func canonical(a AxisAngle) (r3.Vec, float64) {
	axis := unitOrDefault(a.Axis)
	w := math.Mod(a.Angle, 2*math.Pi)
	if w < 0 {
		w += 2 * math.Pi
	}
	if w > math.Pi {
		return r3.Scale(-1, axis), 2*math.Pi - w
	}
	return axis, w
}
