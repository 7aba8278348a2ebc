// Package segmentation partitions a voxel grid into grains by region growing
// under a misorientation tolerance.
package segmentation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"

	"ebsdrecon/pkg/orientation"
	"ebsdrecon/pkg/symmetry"
	"ebsdrecon/pkg/voxel"
)

// ErrInvalidTolerance is returned for a tolerance outside [0, π].
var ErrInvalidTolerance = errors.New("segmentation: misorientation tolerance out of range")

// ProgressCallback reports how many voxels have been assigned so far.
type ProgressCallback func(completed, total int, message string)

// Params controls one segmentation pass.
type Params struct {
	// Tolerance is the largest misorientation, in radians, between a grain's
	// running average orientation and a voxel admitted to it.
	Tolerance float64

	// MinSeedQuality is the lowest image quality a voxel may have to start a
	// grain. Voxels below it only join grains grown from better seeds.
	MinSeedQuality float64

	// Progress is optional.
	Progress ProgressCallback
}

// Validate checks the tolerance range.
func (p Params) Validate() error {
	if math.IsNaN(p.Tolerance) || p.Tolerance < 0 || p.Tolerance > math.Pi {
		return fmt.Errorf("%w: %g", ErrInvalidTolerance, p.Tolerance)
	}
	return nil
}

// Result summarises a pass. Sizes and Seeds are indexed by grain id; entry 0
// belongs to the unassigned pseudo-grain and is always 0 and -1.
type Result struct {
	GrainCount int
	Sizes      []int
	Seeds      []int
}

type state uint8

const (
	unassigned state = iota
	inQueue
	assigned
)

type segmenter struct {
	grid   *voxel.Grid
	params Params
	ops    map[int]symmetry.Operators

	state []state
	queue []int
	nbuf  []int

	result   Result
	assigned int
}

// Run assigns every voxel of grid to exactly one grain and returns the grain
// sizes. Grain ids start at 1 and follow seed discovery order.
//
// Every phase present in the grid must resolve to a known crystal structure
// through phases; otherwise Run fails before any grain id is written.
func Run(grid *voxel.Grid, phases symmetry.PhaseTable, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ops, err := resolvePhases(grid, phases)
	if err != nil {
		return nil, err
	}
	s := &segmenter{
		grid:   grid,
		params: p,
		ops:    ops,
		state:  make([]state, grid.Len()),
		result: Result{Sizes: []int{0}, Seeds: []int{-1}},
	}
	grid.ResetGrainIDs()

	for i := range grid.Voxels {
		if s.state[i] == unassigned && grid.Voxels[i].ImageQuality >= p.MinSeedQuality {
			s.grow(i)
		}
	}
	s.assignBadPoints()
	// Whatever is left is cut off from every grain, e.g. a grid whose
	// quality is below the seed threshold everywhere.
	for i := range grid.Voxels {
		if s.state[i] == unassigned {
			s.grow(i)
		}
	}
	s.report("segmentation complete")
	return &s.result, nil
}

func resolvePhases(grid *voxel.Grid, phases symmetry.PhaseTable) (map[int]symmetry.Operators, error) {
	ops := make(map[int]symmetry.Operators)
	for i := range grid.Voxels {
		phase := grid.Voxels[i].Phase
		if _, ok := ops[phase]; ok {
			continue
		}
		o, err := phases.Operators(phase)
		if err != nil {
			return nil, fmt.Errorf("segmentation: voxel %d: %w", i, err)
		}
		ops[phase] = o
	}
	return ops, nil
}

// grow floods one grain outward from seed.
func (s *segmenter) grow(seed int) {
	id := len(s.result.Sizes)
	s.result.Sizes = append(s.result.Sizes, 0)
	s.result.Seeds = append(s.result.Seeds, seed)
	s.result.GrainCount++

	v := &s.grid.Voxels[seed]
	phase := v.Phase
	ops := s.ops[phase]
	ref := v.Orientation
	sum := ref
	avg := ref

	s.assign(seed, id)
	s.queue = s.queue[:0]
	s.enqueueNeighbors(seed)

	for qi := 0; qi < len(s.queue); qi++ {
		c := s.queue[qi]
		cv := &s.grid.Voxels[c]
		if cv.Phase != phase {
			s.state[c] = unassigned
			continue
		}
		m := symmetry.MisorientationWith(ops, avg, cv.Orientation)
		if m.Angle >= s.params.Tolerance {
			// Rejected candidates may still be reached again from a later
			// member of this grain, or seed a grain of their own.
			s.state[c] = unassigned
			continue
		}
		s.assign(c, id)
		near := symmetry.NearestEquivalentWith(ops, ref, cv.Orientation)
		sum = quat.Add(sum, near)
		avg = orientation.Normalize(sum)
		s.enqueueNeighbors(c)
	}
}

func (s *segmenter) assign(i, id int) {
	s.state[i] = assigned
	s.grid.Voxels[i].GrainID = id
	s.result.Sizes[id]++
	s.assigned++
	if s.assigned%progressStep(s.grid.Len()) == 0 {
		s.report("")
	}
}

func (s *segmenter) enqueueNeighbors(i int) {
	s.nbuf = s.grid.Neighbors6(i, s.nbuf)
	for _, n := range s.nbuf {
		if s.state[n] == unassigned {
			s.state[n] = inQueue
			s.queue = append(s.queue, n)
		}
	}
}

// assignBadPoints gives unassigned voxels to the grain most common among
// their face neighbours. Each pass decides on the state at its start, so a
// region is filled inward one layer per pass.
func (s *segmenter) assignBadPoints() {
	type fill struct{ voxel, grain int }
	var fills []fill
	counts := make(map[int]int, 6)
	for {
		fills = fills[:0]
		for i := range s.grid.Voxels {
			if s.state[i] != unassigned {
				continue
			}
			clear(counts)
			best, bestCount := 0, 0
			s.nbuf = s.grid.Neighbors6(i, s.nbuf)
			for _, n := range s.nbuf {
				g := s.grid.Voxels[n].GrainID
				if g == 0 {
					continue
				}
				counts[g]++
				if c := counts[g]; c > bestCount || (c == bestCount && g < best) {
					best, bestCount = g, c
				}
			}
			if best != 0 {
				fills = append(fills, fill{i, best})
			}
		}
		if len(fills) == 0 {
			return
		}
		for _, f := range fills {
			s.assign(f.voxel, f.grain)
		}
	}
}

func (s *segmenter) report(message string) {
	if s.params.Progress != nil {
		s.params.Progress(s.assigned, s.grid.Len(), message)
	}
}

func progressStep(total int) int {
	if step := total / 20; step > 0 {
		return step
	}
	return 1
}
