package symmetry

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"ebsdrecon/pkg/orientation"
)

var allStructures = []CrystalStructure{Cubic, Hexagonal, OrthoRhombic, Trigonal, Tetragonal}

func randomQuat(rng *rand.Rand) quat.Number {
	return orientation.Normalize(quat.Number{
		Real: rng.NormFloat64(), Imag: rng.NormFloat64(),
		Jmag: rng.NormFloat64(), Kmag: rng.NormFloat64(),
	})
}

func deg(d float64) float64 { return d * math.Pi / 180 }

func TestOperatorTables(t *testing.T) {
	want := map[CrystalStructure]int{
		Cubic: 24, Hexagonal: 12, OrthoRhombic: 4, Trigonal: 6, Tetragonal: 8,
	}
	for c, n := range want {
		ops, err := OperatorsFor(c)
		require.NoError(t, err)
		require.Equal(t, n, ops.Count(), c.String())
		assert.Equal(t, orientation.Identity, ops.Get(0))

		// Each table is a group: the product of two operators is again in
		// the table up to sign.
		for i := 0; i < ops.Count(); i++ {
			assert.InDelta(t, 1, quat.Abs(ops.Get(i)), 1e-12)
			for j := 0; j < ops.Count(); j++ {
				p := orientation.Multiply(ops.Get(i), ops.Get(j))
				found := false
				for k := 0; k < ops.Count(); k++ {
					if math.Abs(math.Abs(orientation.Dot(p, ops.Get(k)))-1) < 1e-9 {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("%s: product of operators %d and %d not in table", c, i, j)
				}
			}
		}
	}
}

func TestUnknownStructure(t *testing.T) {
	_, err := OperatorsFor(Unknown)
	assert.ErrorIs(t, err, ErrUnknownCrystalStructure)

	_, err = Misorientation(orientation.Identity, orientation.Identity, Unknown)
	assert.ErrorIs(t, err, ErrUnknownCrystalStructure)

	_, err = NearestEquivalent(orientation.Identity, orientation.Identity, CrystalStructure(42))
	assert.ErrorIs(t, err, ErrUnknownCrystalStructure)
}

func TestMisorientationIdentical(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, c := range allStructures {
		for i := 0; i < 50; i++ {
			q := randomQuat(rng)
			m, err := Misorientation(q, q, c)
			require.NoError(t, err)
			assert.InDelta(t, 0, m.Angle, 1e-5)
		}
	}

	q := orientation.EulerToQuaternion(orientation.Euler{Phi1: 0.3, Phi: 0.8, Phi2: 1.7})
	m, err := Misorientation(q, q, Cubic)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Angle)
	assert.Equal(t, r3.Vec{X: 0, Y: 0, Z: 1}, m.Axis)
}

func TestMisorientationSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, c := range allStructures {
		for i := 0; i < 200; i++ {
			a, b := randomQuat(rng), randomQuat(rng)
			ab, err := Misorientation(a, b, c)
			require.NoError(t, err)
			ba, err := Misorientation(b, a, c)
			require.NoError(t, err)
			if math.Abs(ab.Angle-ba.Angle) > 1e-9 {
				t.Fatalf("%s: misorientation not symmetric: %v vs %v", c, ab.Angle, ba.Angle)
			}
			assert.LessOrEqual(t, ab.Angle, math.Pi)
		}
	}
}

func TestMisorientationKnownAngles(t *testing.T) {
	rot := func(axis r3.Vec, w float64) quat.Number {
		return orientation.AxisAngleToQuaternion(orientation.AxisAngle{Axis: axis, Angle: w})
	}
	tests := []struct {
		name string
		q    quat.Number
		c    CrystalStructure
		want float64
	}{
		{"cubic 45 about z", rot(r3.Vec{Z: 1}, deg(45)), Cubic, deg(45)},
		{"cubic 90 about z is symmetric", rot(r3.Vec{Z: 1}, deg(90)), Cubic, 0},
		{"cubic 60 about 111", rot(r3.Vec{X: 1, Y: 1, Z: 1}, deg(60)), Cubic, deg(60)},
		{"hex 60 about c is symmetric", rot(r3.Vec{Z: 1}, deg(60)), Hexagonal, 0},
		{"hex 20 about c", rot(r3.Vec{Z: 1}, deg(20)), Hexagonal, deg(20)},
		{"ortho 90 about z", rot(r3.Vec{Z: 1}, deg(90)), OrthoRhombic, deg(90)},
		{"tetragonal 90 about z", rot(r3.Vec{Z: 1}, deg(90)), Tetragonal, 0},
		{"trigonal 120 about z", rot(r3.Vec{Z: 1}, deg(120)), Trigonal, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Misorientation(orientation.Identity, tt.q, tt.c)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, m.Angle, 1e-6)
		})
	}
}

func TestNearestEquivalent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ops, err := OperatorsFor(Cubic)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		ref := randomQuat(rng)
		// A symmetric variant of ref, possibly with the opposite sign.
		q := quat.Scale(-1, orientation.Multiply(ref, ops.Get(rng.Intn(ops.Count()))))
		got, err := NearestEquivalent(ref, q, Cubic)
		require.NoError(t, err)
		assert.InDelta(t, 1, orientation.Dot(ref, got), 1e-9)
	}
}

func TestFundamentalZone(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 50; i++ {
		q := randomQuat(rng)
		fz, err := FundamentalZone(q, Cubic)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, fz.Real, 0.0)
		// The cubic fundamental zone never holds rotations above 62.8°.
		assert.LessOrEqual(t, orientation.RotationAngle(fz), deg(62.8+1e-6))

		m, err := Misorientation(q, fz, Cubic)
		require.NoError(t, err)
		assert.InDelta(t, 0, m.Angle, 1e-6)
	}
	_, err := FundamentalZone(orientation.Identity, Unknown)
	assert.ErrorIs(t, err, ErrUnknownCrystalStructure)
}

func TestSignatures(t *testing.T) {
	sigma3 := orientation.AxisAngleToQuaternion(orientation.AxisAngle{
		Axis: r3.Vec{X: 1, Y: 1, Z: 1}, Angle: deg(60),
	})
	m, err := Misorientation(orientation.Identity, sigma3, Cubic)
	require.NoError(t, err)
	assert.True(t, IsTwin(m))

	low := orientation.AxisAngleToQuaternion(orientation.AxisAngle{Axis: r3.Vec{Z: 1}, Angle: deg(10)})
	m, err = Misorientation(orientation.Identity, low, Cubic)
	require.NoError(t, err)
	assert.False(t, IsTwin(m))

	colony := Result{Angle: deg(60), Axis: r3.Vec{X: 1}}
	assert.True(t, IsColony(colony))
	assert.False(t, IsColony(Result{Angle: deg(30), Axis: r3.Vec{X: 1}}))
}

func TestParseCrystalStructure(t *testing.T) {
	for _, c := range allStructures {
		got, err := ParseCrystalStructure(" " + c.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	got, err := ParseCrystalStructure("Cubic")
	require.NoError(t, err)
	assert.Equal(t, Cubic, got)

	_, err = ParseCrystalStructure("unknown")
	assert.True(t, errors.Is(err, ErrUnknownCrystalStructure))
	_, err = ParseCrystalStructure("monoclinic")
	assert.ErrorIs(t, err, ErrUnknownCrystalStructure)
}

func TestPhaseTable(t *testing.T) {
	table := PhaseTable{1: Cubic, 2: Hexagonal}
	require.NoError(t, table.Validate())
	assert.Equal(t, []int{1, 2}, table.IDs())

	c, err := table.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, Hexagonal, c)

	_, err = table.Lookup(3)
	assert.ErrorIs(t, err, ErrUnknownPhase)

	table[3] = Unknown
	assert.ErrorIs(t, table.Validate(), ErrUnknownCrystalStructure)
	_, err = table.Operators(3)
	assert.ErrorIs(t, err, ErrUnknownCrystalStructure)
}
