package cleanup

import (
	"fmt"

	"ebsdrecon/pkg/grain"
	"ebsdrecon/pkg/voxel"
)

// Mapping translates grain ids from before a renumbering to after it. Ids of
// absorbed grains map to 0.
type Mapping struct {
	newID []int
	count int
}

// ComputeMapping assigns 1..N to the active grains of g in ascending id
// order. It does not modify g.
func ComputeMapping(g *grain.Graph) Mapping {
	m := Mapping{newID: make([]int, g.Len())}
	for _, gr := range g.Active() {
		m.count++
		m.newID[gr.ID] = m.count
	}
	return m
}

// NewID returns the id old maps to, or 0.
func (m Mapping) NewID(old int) int {
	if old < 0 || old >= len(m.newID) {
		return 0
	}
	return m.newID[old]
}

// Count is the number of grains after renumbering.
func (m Mapping) Count() int { return m.count }

// Apply rewrites grid and g to the new numbering. The new voxel ids and the
// new grain table are built completely before either is swapped in, so a
// failure leaves both untouched.
func (m Mapping) Apply(grid *voxel.Grid, g *grain.Graph) error {
	if len(m.newID) != g.Len() {
		return fmt.Errorf("cleanup: mapping covers %d grains, graph has %d", len(m.newID), g.Len())
	}
	ids := grid.GrainIDs()
	for i, old := range ids {
		if old == 0 {
			continue
		}
		n := m.NewID(old)
		if n == 0 {
			return fmt.Errorf("%w: voxel %d belongs to inactive grain %d", grain.ErrInvariant, i, old)
		}
		ids[i] = n
	}

	grains := make([]grain.Grain, m.count+1)
	grains[0] = *g.Grain(0)
	grains[0].Voxels, grains[0].Neighbors = nil, nil
	for _, gr := range g.Active() {
		n := m.newID[gr.ID]
		c := *gr
		c.ID = n
		c.MergedInto = 0
		c.Voxels = append([]int(nil), gr.Voxels...)
		c.Neighbors = make([]grain.Neighbor, 0, len(gr.Neighbors))
		for _, nb := range gr.Neighbors {
			id := m.NewID(nb.ID)
			if id == 0 {
				return fmt.Errorf("%w: grain %d lists inactive neighbour %d", grain.ErrInvariant, gr.ID, nb.ID)
			}
			nb.ID = id
			c.Neighbors = append(c.Neighbors, nb)
		}
		grains[n] = c
	}

	if err := g.Replace(grains); err != nil {
		return err
	}
	grid.SetGrainIDs(ids)
	return nil
}
