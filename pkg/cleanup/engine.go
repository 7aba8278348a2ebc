// Package cleanup post-processes a grain graph: it absorbs grains that are
// too small, merges twin and colony related neighbours, folds grains that
// sit entirely inside another one, and finally compacts the grain ids.
package cleanup

import (
	"io"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"ebsdrecon/pkg/grain"
	"ebsdrecon/pkg/symmetry"
	"ebsdrecon/pkg/voxel"
)

// Engine runs cleanup passes on one grid and its grain graph. Every pass
// leaves both consistent: membership, neighbour lists and the statistics of
// every grain that grew are up to date when it returns.
type Engine struct {
	grid  *voxel.Grid
	graph *grain.Graph
	log   logrus.FieldLogger
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(grid *voxel.Grid, graph *grain.Graph, log logrus.FieldLogger) *Engine {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Engine{grid: grid, graph: graph, log: log}
}

// MergeSmallGrains absorbs every grain with fewer than minSize voxels into
// the neighbour it shares the most faces with. Ties go to the neighbour with
// the smaller misorientation, then to the smaller id. Passes repeat until no
// grain changes; grains without any neighbour are kept. It returns the
// number of grains absorbed.
func (e *Engine) MergeSmallGrains(minSize int) (int, error) {
	total := 0
	for {
		merged := 0
		touched := make(map[int]struct{})
		for _, gr := range e.graph.Active() {
			if !gr.Active || gr.Size() >= minSize {
				continue
			}
			into, ok := e.absorber(gr)
			if !ok {
				continue
			}
			e.log.WithFields(logrus.Fields{
				"grain": gr.ID, "into": into, "size": gr.Size(),
			}).Debug("absorbing small grain")
			if err := e.graph.Merge(e.grid, into, gr.ID); err != nil {
				return total + merged, err
			}
			touched[into] = struct{}{}
			merged++
		}
		e.refresh(touched)
		total += merged
		if merged == 0 {
			return total, nil
		}
	}
}

func (e *Engine) absorber(gr *grain.Grain) (int, bool) {
	best, bestFaces, bestMiso := 0, -1, math.Inf(1)
	for _, n := range gr.Neighbors {
		if !e.graph.Grain(n.ID).Active {
			continue
		}
		miso := math.Inf(1)
		if m, ok := e.graph.Misorientation(gr.ID, n.ID); ok {
			miso = m.Angle
		}
		switch {
		case n.Faces > bestFaces,
			n.Faces == bestFaces && miso < bestMiso,
			n.Faces == bestFaces && miso == bestMiso && n.ID < best:
			best, bestFaces, bestMiso = n.ID, n.Faces, miso
		}
	}
	return best, best != 0
}

// MergeTwins merges groups of neighbouring cubic grains whose
// misorientations match a twin signature. Each group is merged into its
// lowest id, which keeps its own orientation. Every grain of the group,
// survivor included, is flagged TwinMerged.
func (e *Engine) MergeTwins() (int, error) {
	return e.mergeRelated(symmetry.Cubic, symmetry.IsTwin, func(g *grain.Grain) { g.TwinMerged = true })
}

// MergeColonies merges groups of neighbouring hexagonal grains whose
// misorientations match a colony signature, flagging them ColonyMerged.
func (e *Engine) MergeColonies() (int, error) {
	return e.mergeRelated(symmetry.Hexagonal, symmetry.IsColony, func(g *grain.Grain) { g.ColonyMerged = true })
}

func (e *Engine) mergeRelated(structure symmetry.CrystalStructure, match func(symmetry.Result) bool, flag func(*grain.Grain)) (int, error) {
	phases := e.graph.Phases()
	rel := simple.NewUndirectedGraph()
	for _, gr := range e.graph.Active() {
		if c, err := phases.Lookup(gr.Phase); err != nil || c != structure {
			continue
		}
		for _, n := range gr.Neighbors {
			if n.ID < gr.ID {
				continue
			}
			m, ok := e.graph.Misorientation(gr.ID, n.ID)
			if !ok || !match(m) {
				continue
			}
			rel.SetEdge(rel.NewEdge(simple.Node(gr.ID), simple.Node(n.ID)))
		}
	}

	merged := 0
	touched := make(map[int]struct{})
	for _, comp := range topo.ConnectedComponents(rel) {
		ids := make([]int, len(comp))
		for i, n := range comp {
			ids[i] = int(n.ID())
		}
		sort.Ints(ids)
		into := ids[0]
		for _, id := range ids[1:] {
			if err := e.graph.Merge(e.grid, into, id); err != nil {
				return merged, err
			}
			flag(e.graph.Grain(id))
			merged++
		}
		flag(e.graph.Grain(into))
		touched[into] = struct{}{}
		e.log.WithFields(logrus.Fields{
			"into": into, "grains": ids, "structure": structure.String(),
		}).Debug("merged related grains")
	}
	e.refresh(touched)
	return merged, nil
}

// MergeContained absorbs every grain that has exactly one neighbour and does
// not touch the grid boundary into that neighbour, flagging it
// ContainedMerged. Passes repeat until no grain changes.
func (e *Engine) MergeContained() (int, error) {
	total := 0
	for {
		merged := 0
		touched := make(map[int]struct{})
		for _, gr := range e.graph.Active() {
			if !gr.Active || gr.SurfaceGrain || len(gr.Neighbors) != 1 {
				continue
			}
			into := gr.Neighbors[0].ID
			if err := e.graph.Merge(e.grid, into, gr.ID); err != nil {
				return total + merged, err
			}
			gr.ContainedMerged = true
			touched[into] = struct{}{}
			merged++
		}
		e.refresh(touched)
		total += merged
		if merged == 0 {
			return total, nil
		}
	}
}

// Renumber compacts the active grain ids to 1..N, keeping their order.
func (e *Engine) Renumber() (Mapping, error) {
	m := ComputeMapping(e.graph)
	if err := m.Apply(e.grid, e.graph); err != nil {
		return Mapping{}, err
	}
	return m, nil
}

func (e *Engine) refresh(ids map[int]struct{}) {
	list := make([]int, 0, len(ids))
	for id := range ids {
		if e.graph.Grain(id).Active {
			list = append(list, id)
		}
	}
	sort.Ints(list)
	e.graph.Refresh(e.grid, list...)
}
