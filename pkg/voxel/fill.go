package voxel

import "math"

// FillLowConfidence replaces the measurement of every voxel whose confidence
// is below minConfidence with that of its most confident face neighbour, as
// long as that neighbour is at or above the threshold. Passes repeat until no
// voxel changes, so good data grows into bad regions one layer at a time. It
// returns the number of voxels filled.
func FillLowConfidence(grid *Grid, minConfidence float64) int {
	filled := 0
	best := make([]int, grid.Len())
	var buf []int
	for {
		changed := 0
		for i := range grid.Voxels {
			best[i] = -1
			if grid.Voxels[i].Confidence >= minConfidence {
				continue
			}
			bestConf := math.Inf(-1)
			buf = grid.Neighbors6(i, buf)
			for _, n := range buf {
				if c := grid.Voxels[n].Confidence; c >= minConfidence && c > bestConf {
					bestConf = c
					best[i] = n
				}
			}
		}
		// Copy only after the whole pass so a voxel filled in this pass is
		// not used as a source until the next one.
		for i, src := range best {
			if src < 0 {
				continue
			}
			v, s := &grid.Voxels[i], &grid.Voxels[src]
			v.Orientation = s.Orientation
			v.Euler = s.Euler
			v.Phase = s.Phase
			v.ImageQuality = s.ImageQuality
			v.Confidence = s.Confidence
			v.FillSource = src
			changed++
		}
		if changed == 0 {
			return filled
		}
		filled += changed
	}
}
