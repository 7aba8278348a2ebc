// Package synthetic generates Voronoi microstructures with known grains for
// tests and demonstrations.
package synthetic

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"ebsdrecon/pkg/orientation"
	"ebsdrecon/pkg/voxel"
)

// ErrNoGrains is returned when Params.Grains is not positive.
var ErrNoGrains = errors.New("synthetic: grain count must be positive")

// Params describes a microstructure.
type Params struct {
	Geometry voxel.Geometry

	// Grains is the number of Voronoi seeds.
	Grains int

	// Phase is written to every voxel.
	Phase int

	// Scatter is the standard deviation, in radians, of the rotation applied
	// to each voxel around its grain orientation.
	Scatter float64

	// BadFraction of the voxels get a random orientation and a confidence
	// of 0.05 to imitate failed indexing.
	BadFraction float64

	Seed int64
}

// Truth records what the generator put in the grid.
type Truth struct {
	// Labels holds the generating seed (1-based) for every voxel.
	Labels []int
	// Orientations is indexed by label; entry 0 is unused.
	Orientations []quat.Number
}

// site is a Voronoi seed stored in the k-d tree.
type site struct {
	r3.Vec
	label int
}

func (p site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(site)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p site) Dims() int { return 3 }

func (p site) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(site).Vec))
}

type sites []site

func (p sites) Index(i int) kdtree.Comparable         { return p[i] }
func (p sites) Len() int                              { return len(p) }
func (p sites) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p sites) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(sitePlane{sites: p, Dim: d}, kdtree.MedianOfRandoms(sitePlane{sites: p, Dim: d}, 100))
}

type sitePlane struct {
	sites
	kdtree.Dim
}

func (p sitePlane) Less(i, j int) bool {
	return p.sites[i].Compare(p.sites[j], p.Dim) < 0
}

func (p sitePlane) Slice(start, end int) kdtree.SortSlicer {
	return sitePlane{sites: p.sites[start:end], Dim: p.Dim}
}

func (p sitePlane) Swap(i, j int) {
	p.sites[i], p.sites[j] = p.sites[j], p.sites[i]
}

// Generate builds a grid in which every voxel belongs to its nearest seed.
// The same Params always produce the same grid.
func Generate(p Params) (*voxel.Grid, *Truth, error) {
	if p.Grains <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrNoGrains, p.Grains)
	}
	grid, err := voxel.New(p.Geometry)
	if err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewSource(p.Seed))

	pts := make(sites, p.Grains)
	truth := &Truth{
		Labels:       make([]int, grid.Len()),
		Orientations: make([]quat.Number, p.Grains+1),
	}
	ext := r3.Vec{
		X: float64(p.Geometry.XPoints) * p.Geometry.XRes,
		Y: float64(p.Geometry.YPoints) * p.Geometry.YRes,
		Z: float64(p.Geometry.ZPoints) * p.Geometry.ZRes,
	}
	for i := range pts {
		pts[i] = site{
			Vec:   r3.Vec{X: rng.Float64() * ext.X, Y: rng.Float64() * ext.Y, Z: rng.Float64() * ext.Z},
			label: i + 1,
		}
		truth.Orientations[i+1] = RandomOrientation(rng)
	}
	tree := kdtree.New(pts, false)

	for i := range grid.Voxels {
		nearest, _ := tree.Nearest(site{Vec: grid.Position(i)})
		label := nearest.(site).label
		truth.Labels[i] = label

		v := &grid.Voxels[i]
		v.Phase = p.Phase
		v.ImageQuality = 0.5 + 0.5*rng.Float64()
		v.Confidence = 0.5 + 0.5*rng.Float64()
		if rng.Float64() < p.BadFraction {
			v.SetOrientation(RandomOrientation(rng))
			v.Confidence = 0.05
			v.ImageQuality = 0.05
			continue
		}
		q := truth.Orientations[label]
		if p.Scatter > 0 {
			q = orientation.Multiply(q, scatter(rng, p.Scatter))
		}
		v.SetOrientation(q)
	}
	return grid, truth, nil
}

// RandomOrientation draws a rotation uniformly from SO(3).
func RandomOrientation(rng *rand.Rand) quat.Number {
	u1, u2, u3 := rng.Float64(), rng.Float64(), rng.Float64()
	a, b := math.Sqrt(1-u1), math.Sqrt(u1)
	return orientation.Positive(quat.Number{
		Real: b * math.Cos(2*math.Pi*u3),
		Imag: a * math.Sin(2*math.Pi*u2),
		Jmag: a * math.Cos(2*math.Pi*u2),
		Kmag: b * math.Sin(2*math.Pi*u3),
	})
}

func scatter(rng *rand.Rand, sigma float64) quat.Number {
	axis := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	return orientation.AxisAngleToQuaternion(orientation.AxisAngle{
		Axis:  axis,
		Angle: math.Abs(rng.NormFloat64()) * sigma,
	})
}
