// Package voxel holds the dense 3D grid of EBSD measurements that the
// reconstruction runs on.
//
// Voxels are stored in a single slice with the linear layout
// z*(XPoints*YPoints) + y*XPoints + x, X varying fastest.
package voxel

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"ebsdrecon/pkg/orientation"
)

var (
	// ErrInvalidGeometry is returned for non-positive dimensions or
	// resolutions.
	ErrInvalidGeometry = errors.New("voxel: invalid geometry")

	// ErrDimensionMismatch is returned when loader output does not match the
	// declared geometry.
	ErrDimensionMismatch = errors.New("voxel: dimensions do not match geometry")
)

// Geometry is the size of a grid in voxels and the physical spacing between
// voxel centres along each axis.
type Geometry struct {
	XPoints int     `yaml:"xPoints"`
	YPoints int     `yaml:"yPoints"`
	ZPoints int     `yaml:"zPoints"`
	XRes    float64 `yaml:"xRes"`
	YRes    float64 `yaml:"yRes"`
	ZRes    float64 `yaml:"zRes"`
}

// Validate checks that all dimensions and resolutions are positive.
func (g Geometry) Validate() error {
	if g.XPoints <= 0 || g.YPoints <= 0 || g.ZPoints <= 0 {
		return fmt.Errorf("%w: dimensions %dx%dx%d", ErrInvalidGeometry, g.XPoints, g.YPoints, g.ZPoints)
	}
	if g.XRes <= 0 || g.YRes <= 0 || g.ZRes <= 0 {
		return fmt.Errorf("%w: resolution %gx%gx%g", ErrInvalidGeometry, g.XRes, g.YRes, g.ZRes)
	}
	return nil
}

// Total is the number of voxels.
func (g Geometry) Total() int {
	return g.XPoints * g.YPoints * g.ZPoints
}

// Voxel is one measurement site.
type Voxel struct {
	Orientation  quat.Number
	Euler        orientation.Euler
	Phase        int
	ImageQuality float64
	Confidence   float64

	// GrainID is 0 while unassigned, otherwise an id in the grain graph.
	GrainID int

	// SurfaceFaces is the number of faces of the voxel on the grid boundary.
	SurfaceFaces int

	// FillSource is the index the measurement was copied from by
	// FillLowConfidence, or -1.
	FillSource int

	// Local misorientations in radians, filled after cleanup.
	KernelMisorientation   float64
	GrainMisorientation    float64
	MisorientationGradient float64
}

// SetOrientation stores q (normalised, scalar part non-negative) together with
// its Euler angles.
func (v *Voxel) SetOrientation(q quat.Number) {
	v.Orientation = orientation.Positive(orientation.Normalize(q))
	v.Euler = orientation.QuaternionToEuler(v.Orientation)
}

// SetEuler stores e and the quaternion derived from it.
func (v *Voxel) SetEuler(e orientation.Euler) {
	v.Euler = e
	v.Orientation = orientation.Positive(orientation.EulerToQuaternion(e))
}

// Grid owns the voxels and their geometry.
type Grid struct {
	Geometry
	Voxels []Voxel

	sliceSize int
}

// New allocates a grid of zero-valued voxels with identity orientation.
func New(g Geometry) (*Grid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	grid := &Grid{
		Geometry:  g,
		Voxels:    make([]Voxel, g.Total()),
		sliceSize: g.XPoints * g.YPoints,
	}
	for i := range grid.Voxels {
		v := &grid.Voxels[i]
		v.Orientation = orientation.Identity
		v.FillSource = -1
		v.SurfaceFaces = grid.boundaryFaces(i)
	}
	return grid, nil
}

// Len is the number of voxels.
func (g *Grid) Len() int { return len(g.Voxels) }

// Index returns the linear offset of (x, y, z). It panics when the coordinate
// lies outside the grid.
func (g *Grid) Index(x, y, z int) int {
	if !g.InBounds(x, y, z) {
		panic(fmt.Sprintf("voxel: index (%d,%d,%d) out of range %dx%dx%d",
			x, y, z, g.XPoints, g.YPoints, g.ZPoints))
	}
	return z*g.sliceSize + y*g.XPoints + x
}

// Coord is the inverse of Index.
func (g *Grid) Coord(i int) (x, y, z int) {
	return i % g.XPoints, (i / g.XPoints) % g.YPoints, i / g.sliceSize
}

// InBounds reports whether (x, y, z) lies inside the grid.
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && x < g.XPoints && y >= 0 && y < g.YPoints && z >= 0 && z < g.ZPoints
}

// Neighbors6 appends the face neighbours of voxel i to buf[:0] and returns it.
// Neighbours outside the grid are omitted.
func (g *Grid) Neighbors6(i int, buf []int) []int {
	buf = buf[:0]
	x, y, z := g.Coord(i)
	if z > 0 {
		buf = append(buf, i-g.sliceSize)
	}
	if y > 0 {
		buf = append(buf, i-g.XPoints)
	}
	if x > 0 {
		buf = append(buf, i-1)
	}
	if x < g.XPoints-1 {
		buf = append(buf, i+1)
	}
	if y < g.YPoints-1 {
		buf = append(buf, i+g.XPoints)
	}
	if z < g.ZPoints-1 {
		buf = append(buf, i+g.sliceSize)
	}
	return buf
}

// Neighbors26 appends the face, edge and corner neighbours of voxel i to
// buf[:0] and returns it.
func (g *Grid) Neighbors26(i int, buf []int) []int {
	buf = buf[:0]
	x, y, z := g.Coord(i)
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				if g.InBounds(x+dx, y+dy, z+dz) {
					buf = append(buf, i+dz*g.sliceSize+dy*g.XPoints+dx)
				}
			}
		}
	}
	return buf
}

// OnBoundary reports whether voxel i touches the outside of the grid.
func (g *Grid) OnBoundary(i int) bool {
	return g.boundaryFaces(i) > 0
}

func (g *Grid) boundaryFaces(i int) int {
	x, y, z := g.Coord(i)
	n := 0
	for _, edge := range [][2]int{{x, g.XPoints}, {y, g.YPoints}, {z, g.ZPoints}} {
		if edge[0] == 0 {
			n++
		}
		if edge[0] == edge[1]-1 {
			n++
		}
	}
	return n
}

// Position is the physical location of voxel i.
func (g *Grid) Position(i int) r3.Vec {
	x, y, z := g.Coord(i)
	return r3.Vec{X: float64(x) * g.XRes, Y: float64(y) * g.YRes, Z: float64(z) * g.ZRes}
}

// VoxelVolume is the physical volume of one voxel.
func (g *Grid) VoxelVolume() float64 {
	return g.XRes * g.YRes * g.ZRes
}

// FaceArea is the physical area of the face between voxel i and its
// neighbour j.
func (g *Grid) FaceArea(i, j int) float64 {
	switch d := j - i; {
	case d == 1 || d == -1:
		return g.YRes * g.ZRes
	case d == g.XPoints || d == -g.XPoints:
		return g.XRes * g.ZRes
	default:
		return g.XRes * g.YRes
	}
}

// ResetGrainIDs marks every voxel unassigned.
func (g *Grid) ResetGrainIDs() {
	for i := range g.Voxels {
		g.Voxels[i].GrainID = 0
	}
}

// GrainIDs returns a copy of the grain id of every voxel.
func (g *Grid) GrainIDs() []int {
	ids := make([]int, len(g.Voxels))
	for i := range g.Voxels {
		ids[i] = g.Voxels[i].GrainID
	}
	return ids
}

// SetGrainIDs replaces every voxel's grain id. It panics if len(ids) differs
// from the number of voxels.
func (g *Grid) SetGrainIDs(ids []int) {
	if len(ids) != len(g.Voxels) {
		panic(fmt.Sprintf("voxel: %d grain ids for %d voxels", len(ids), len(g.Voxels)))
	}
	for i := range g.Voxels {
		g.Voxels[i].GrainID = ids[i]
	}
}
