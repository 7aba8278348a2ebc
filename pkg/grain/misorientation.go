package grain

import (
	"math"

	"ebsdrecon/pkg/symmetry"
	"ebsdrecon/pkg/voxel"
)

// KernelLimit is the largest neighbour misorientation that still counts
// towards a voxel's kernel average.
const KernelLimit = 5 * math.Pi / 180

// ComputeMisorientations fills the local misorientation fields of every
// assigned voxel and the average misorientation of every active grain:
//
//   - KernelMisorientation: mean misorientation to the 26-neighbourhood,
//     counting only neighbours of the same phase below KernelLimit.
//   - GrainMisorientation: misorientation to the grain's average orientation.
//   - MisorientationGradient: mean absolute difference in grain
//     misorientation to neighbours of the same grain.
func ComputeMisorientations(grid *voxel.Grid, g *Graph) {
	var buf []int
	sums := make([]float64, g.Len())
	for i := range grid.Voxels {
		v := &grid.Voxels[i]
		v.KernelMisorientation, v.GrainMisorientation, v.MisorientationGradient = 0, 0, 0
		if v.GrainID == 0 {
			continue
		}
		gr := g.Grain(v.GrainID)
		ops := g.ops[gr.Phase]
		if vo, ok := g.ops[v.Phase]; ok {
			ops = vo
		}

		total, count := 0.0, 0
		buf = grid.Neighbors26(i, buf)
		for _, n := range buf {
			nv := &grid.Voxels[n]
			if nv.Phase != v.Phase {
				continue
			}
			if w := symmetry.MisorientationWith(ops, v.Orientation, nv.Orientation).Angle; w < KernelLimit {
				total += w
				count++
			}
		}
		if count > 0 {
			v.KernelMisorientation = total / float64(count)
		}

		v.GrainMisorientation = symmetry.MisorientationWith(ops, v.Orientation, gr.AvgOrientation).Angle
		sums[v.GrainID] += v.GrainMisorientation
	}

	for i := range grid.Voxels {
		v := &grid.Voxels[i]
		if v.GrainID == 0 {
			continue
		}
		total, count := 0.0, 0
		buf = grid.Neighbors26(i, buf)
		for _, n := range buf {
			nv := &grid.Voxels[n]
			if nv.GrainID != v.GrainID {
				continue
			}
			total += math.Abs(v.GrainMisorientation - nv.GrainMisorientation)
			count++
		}
		if count > 0 {
			v.MisorientationGradient = total / float64(count)
		}
	}

	for id := 1; id < len(g.grains); id++ {
		gr := &g.grains[id]
		gr.AvgMisorientation = 0
		if gr.Active && len(gr.Voxels) > 0 {
			gr.AvgMisorientation = sums[id] / float64(len(gr.Voxels))
		}
	}
}
