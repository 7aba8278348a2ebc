package grain

import (
	"fmt"
	"math"

	"ebsdrecon/pkg/voxel"
)

// CheckInvariants verifies that the grains partition the assigned voxels of
// grid and that every neighbour relation is symmetric with equal shared
// faces and area. It returns the first violation found, wrapped in
// ErrInvariant.
func CheckInvariants(grid *voxel.Grid, g *Graph) error {
	owner := make([]int, grid.Len())
	for i := range g.grains {
		gr := &g.grains[i]
		if !gr.Active {
			if len(gr.Voxels) > 0 {
				return fmt.Errorf("%w: inactive grain %d owns %d voxels", ErrInvariant, i, len(gr.Voxels))
			}
			continue
		}
		if i == 0 {
			return fmt.Errorf("%w: pseudo-grain 0 is active", ErrInvariant)
		}
		for _, v := range gr.Voxels {
			if owner[v] != 0 {
				return fmt.Errorf("%w: voxel %d owned by grains %d and %d", ErrInvariant, v, owner[v], i)
			}
			owner[v] = i
		}
	}
	for i := range grid.Voxels {
		if id := grid.Voxels[i].GrainID; id != owner[i] {
			return fmt.Errorf("%w: voxel %d has grain id %d but is listed by grain %d", ErrInvariant, i, id, owner[i])
		}
	}

	for i := range g.grains {
		gr := &g.grains[i]
		for _, n := range gr.Neighbors {
			if n.ID == i {
				return fmt.Errorf("%w: grain %d lists itself as a neighbour", ErrInvariant, i)
			}
			if n.ID <= 0 || n.ID >= len(g.grains) || !g.grains[n.ID].Active {
				return fmt.Errorf("%w: grain %d lists missing neighbour %d", ErrInvariant, i, n.ID)
			}
			back, ok := g.grains[n.ID].Neighbor(i)
			if !ok {
				return fmt.Errorf("%w: grain %d lists %d but not the reverse", ErrInvariant, i, n.ID)
			}
			if back.Faces != n.Faces || math.Abs(back.Area-n.Area) > 1e-9*math.Max(1, n.Area) {
				return fmt.Errorf("%w: grains %d and %d disagree on shared surface (%d/%g vs %d/%g)",
					ErrInvariant, i, n.ID, n.Faces, n.Area, back.Faces, back.Area)
			}
		}
	}
	return nil
}
