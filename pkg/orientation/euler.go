package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Euler is a Bunge (z-x-z) Euler triple in radians.
type Euler struct {
	Phi1 float64
	Phi  float64
	Phi2 float64
}

// EulerToQuaternion converts Bunge Euler angles to the unit quaternion
// qz(φ1)⊗qx(Φ)⊗qz(φ2).
func EulerToQuaternion(e Euler) quat.Number {
	s := math.Sin(0.5 * e.Phi)
	c := math.Cos(0.5 * e.Phi)
	diff := 0.5 * (e.Phi1 - e.Phi2)
	sum := 0.5 * (e.Phi1 + e.Phi2)
	return quat.Number{
		Real: c * math.Cos(sum),
		Imag: s * math.Cos(diff),
		Jmag: s * math.Sin(diff),
		Kmag: c * math.Sin(sum),
	}
}

// QuaternionToEuler is the inverse of EulerToQuaternion. φ1 and φ2 are
// wrapped into [0, 2π) and Φ lies in [0, π].
//
// When Φ is 0 or π only φ1+φ2 (respectively φ1−φ2) is defined. In that case
// the whole in-plane rotation is reported on φ1 and φ2 is 0.
func QuaternionToEuler(q quat.Number) Euler {
	q = Normalize(q)
	chi := math.Hypot(q.Real, q.Kmag)
	eta := math.Hypot(q.Imag, q.Jmag)
	const eps = 1e-12

	var e Euler
	switch {
	case eta < eps:
		e.Phi = 0
		e.Phi1 = 2 * math.Atan2(q.Kmag, q.Real)
	case chi < eps:
		e.Phi = math.Pi
		e.Phi1 = 2 * math.Atan2(q.Jmag, q.Imag)
	default:
		e.Phi = 2 * math.Atan2(eta, chi)
		sum := math.Atan2(q.Kmag, q.Real)
		diff := math.Atan2(q.Jmag, q.Imag)
		e.Phi1 = sum + diff
		e.Phi2 = sum - diff
	}
	e.Phi1 = wrapTwoPi(e.Phi1)
	e.Phi2 = wrapTwoPi(e.Phi2)
	return e
}

// Degrees returns the triple converted to degrees, for logging and reports.
func (e Euler) Degrees() [3]float64 {
	return [3]float64{e.Phi1 * 180 / math.Pi, e.Phi * 180 / math.Pi, e.Phi2 * 180 / math.Pi}
}

func wrapTwoPi(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	// Mod can leave a value that rounds to 2π.
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}
