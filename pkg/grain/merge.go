package grain

import (
	"fmt"

	"ebsdrecon/pkg/voxel"
)

// Merge moves every voxel of grain from into grain into and marks from
// inactive. Neighbour lists are combined on both sides of every affected
// edge: faces that from shared with a third grain are added to into's edge
// with that grain, and the edge between into and from disappears.
//
// Statistics of into are not recomputed; call Refresh once a batch of merges
// is done.
func (g *Graph) Merge(grid *voxel.Grid, into, from int) error {
	if into == from {
		return fmt.Errorf("%w: %d", ErrSelfMerge, into)
	}
	dst, src := g.Grain(into), g.Grain(from)
	if !dst.Active {
		return fmt.Errorf("%w: %d", ErrInactiveGrain, into)
	}
	if !src.Active {
		return fmt.Errorf("%w: %d", ErrInactiveGrain, from)
	}

	for _, i := range src.Voxels {
		grid.Voxels[i].GrainID = into
	}
	dst.Voxels = append(dst.Voxels, src.Voxels...)

	for _, n := range src.Neighbors {
		if n.ID == into {
			continue
		}
		dst.addEdge(n.ID, n.Faces, n.Area)
		other := g.Grain(n.ID)
		other.removeEdge(from)
		other.addEdge(into, n.Faces, n.Area)
	}
	dst.removeEdge(from)
	sortNeighbors(dst.Neighbors)

	dst.SurfaceGrain = dst.SurfaceGrain || src.SurfaceGrain
	src.Active = false
	src.Voxels = nil
	src.Neighbors = nil
	src.MergedInto = into
	return nil
}

func (gr *Grain) addEdge(id, faces int, area float64) {
	for k := range gr.Neighbors {
		if gr.Neighbors[k].ID == id {
			gr.Neighbors[k].Faces += faces
			gr.Neighbors[k].Area += area
			return
		}
	}
	gr.Neighbors = append(gr.Neighbors, Neighbor{ID: id, Faces: faces, Area: area})
	sortNeighbors(gr.Neighbors)
}

func (gr *Grain) removeEdge(id int) {
	for k := range gr.Neighbors {
		if gr.Neighbors[k].ID == id {
			gr.Neighbors = append(gr.Neighbors[:k], gr.Neighbors[k+1:]...)
			return
		}
	}
}
