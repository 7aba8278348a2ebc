// Package grain builds the grain graph of a segmented voxel grid: one record
// per grain with its shape, orientation and neighbour statistics, plus the
// merge operation that the cleanup passes rely on.
//
// Grain ids index directly into the graph. Id 0 is the unassigned
// pseudo-grain and is never active.
package grain

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"ebsdrecon/pkg/orientation"
	"ebsdrecon/pkg/symmetry"
)

var (
	// ErrSelfMerge is returned when a grain is asked to absorb itself.
	ErrSelfMerge = errors.New("grain: grain cannot merge with itself")

	// ErrInactiveGrain is returned when a merge names a grain that has
	// already been absorbed.
	ErrInactiveGrain = errors.New("grain: grain is not active")

	// ErrInvariant reports a broken partition or neighbour relation.
	ErrInvariant = errors.New("grain: invariant violated")
)

// Moments are the second moments of inertia of a grain about its centroid,
// with unit density.
type Moments struct {
	Ixx, Iyy, Izz float64
	Ixy, Iyz, Ixz float64
}

// Neighbor is one entry of a grain's neighbour list.
type Neighbor struct {
	ID int
	// Faces is the number of voxel faces shared with the neighbour.
	Faces int
	// Area is the physical area of those faces.
	Area float64
}

// Grain is the record of one grain.
type Grain struct {
	ID     int
	Phase  int
	Active bool
	Voxels []int

	AvgOrientation quat.Number
	Euler          orientation.Euler

	Centroid     r3.Vec
	Moments      Moments
	Radii        [3]float64
	AspectRatios [2]float64
	AxisEuler    orientation.Euler
	Omega3       float64

	Volume        float64
	EquivDiameter float64

	Neighbors []Neighbor

	AvgMisorientation float64
	AvgImageQuality   float64

	SurfaceGrain    bool
	TwinMerged      bool
	ColonyMerged    bool
	ContainedMerged bool

	// MergedInto is the id of the grain that absorbed this one, or 0.
	MergedInto int

	// Neighborhood counts the grains whose centroids lie within one, two and
	// three equivalent radii of this grain's centroid.
	Neighborhood [3]int
}

// Size is the number of member voxels.
func (g *Grain) Size() int { return len(g.Voxels) }

// Neighbor returns the entry for id and whether it exists.
func (g *Grain) Neighbor(id int) (Neighbor, bool) {
	for _, n := range g.Neighbors {
		if n.ID == id {
			return n, true
		}
	}
	return Neighbor{}, false
}

// Graph is the set of grains of one grid.
type Graph struct {
	grains []Grain
	phases symmetry.PhaseTable
	ops    map[int]symmetry.Operators
}

// Len is the number of grain slots including the pseudo-grain 0.
func (g *Graph) Len() int { return len(g.grains) }

// Grain returns the grain with the given id. An id outside the graph is an
// invariant violation and panics.
func (g *Graph) Grain(id int) *Grain {
	if id < 0 || id >= len(g.grains) {
		panic(fmt.Sprintf("grain: id %d out of range [0,%d)", id, len(g.grains)))
	}
	return &g.grains[id]
}

// Active returns the active grains in ascending id order.
func (g *Graph) Active() []*Grain {
	out := make([]*Grain, 0, len(g.grains))
	for i := range g.grains {
		if g.grains[i].Active {
			out = append(out, &g.grains[i])
		}
	}
	return out
}

// ActiveCount is the number of active grains.
func (g *Graph) ActiveCount() int {
	n := 0
	for i := range g.grains {
		if g.grains[i].Active {
			n++
		}
	}
	return n
}

// Phases returns the phase table the graph was built with.
func (g *Graph) Phases() symmetry.PhaseTable { return g.phases }

// Operators returns the symmetry operators of a grain's phase.
func (g *Graph) Operators(id int) symmetry.Operators {
	return g.ops[g.Grain(id).Phase]
}

// Misorientation is the misorientation between the average orientations of
// two grains. Grains of different phases have no meaningful misorientation
// and report ok == false.
func (g *Graph) Misorientation(a, b int) (m symmetry.Result, ok bool) {
	ga, gb := g.Grain(a), g.Grain(b)
	if ga.Phase != gb.Phase {
		return symmetry.Result{}, false
	}
	return symmetry.MisorientationWith(g.ops[ga.Phase], ga.AvgOrientation, gb.AvgOrientation), true
}

// Replace swaps in a complete new set of grains, e.g. after renumbering.
// grains[i].ID must equal i and grain 0 must be inactive.
func (g *Graph) Replace(grains []Grain) error {
	if len(grains) == 0 || grains[0].Active {
		return fmt.Errorf("%w: slot 0 must hold the inactive pseudo-grain", ErrInvariant)
	}
	for i := range grains {
		if grains[i].ID != i {
			return fmt.Errorf("%w: grain at index %d has id %d", ErrInvariant, i, grains[i].ID)
		}
	}
	g.grains = grains
	return nil
}
