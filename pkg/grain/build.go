package grain

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"ebsdrecon/pkg/orientation"
	"ebsdrecon/pkg/symmetry"
	"ebsdrecon/pkg/voxel"
)

// sphereOmega3 is the value of V^5/det(C) for a sphere, where C is the
// second central moment matrix. Omega3 is normalised by it.
var sphereOmega3 = 2000 * math.Pi * math.Pi / 9

// Build creates the graph of a segmented grid. Every grain id found on a
// voxel gets a slot; ids that no voxel carries are left inactive. All grain
// statistics and neighbour lists are computed.
func Build(grid *voxel.Grid, phases symmetry.PhaseTable) (*Graph, error) {
	maxID := 0
	for i := range grid.Voxels {
		id := grid.Voxels[i].GrainID
		if id < 0 {
			return nil, fmt.Errorf("%w: voxel %d has negative grain id %d", ErrInvariant, i, id)
		}
		if id > maxID {
			maxID = id
		}
	}
	g := &Graph{
		grains: make([]Grain, maxID+1),
		phases: phases,
		ops:    make(map[int]symmetry.Operators),
	}
	for id := range g.grains {
		g.grains[id].ID = id
	}
	for i := range grid.Voxels {
		if id := grid.Voxels[i].GrainID; id > 0 {
			gr := &g.grains[id]
			if len(gr.Voxels) == 0 {
				gr.Phase = grid.Voxels[i].Phase
				gr.Active = true
			}
			gr.Voxels = append(gr.Voxels, i)
		}
	}
	for id := 1; id < len(g.grains); id++ {
		gr := &g.grains[id]
		if !gr.Active {
			continue
		}
		if _, ok := g.ops[gr.Phase]; ok {
			continue
		}
		ops, err := phases.Operators(gr.Phase)
		if err != nil {
			return nil, fmt.Errorf("grain %d: %w", id, err)
		}
		g.ops[gr.Phase] = ops
	}
	g.buildNeighbors(grid)
	g.RefreshAll(grid)
	return g, nil
}

// Refresh recomputes the statistics of the given grains from their current
// voxel membership. Inactive ids are skipped. Grains flagged TwinMerged or
// ColonyMerged keep their orientation.
func (g *Graph) Refresh(grid *voxel.Grid, ids ...int) {
	for _, id := range ids {
		if gr := g.Grain(id); gr.Active {
			g.computeStats(grid, gr)
		}
	}
}

// RefreshAll recomputes the statistics of every active grain.
func (g *Graph) RefreshAll(grid *voxel.Grid) {
	for id := 1; id < len(g.grains); id++ {
		if g.grains[id].Active {
			g.computeStats(grid, &g.grains[id])
		}
	}
}

type pairKey struct{ a, b int }

// buildNeighbors scans every voxel face once and records each face between
// two different grains on both of them.
func (g *Graph) buildNeighbors(grid *voxel.Grid) {
	pairs := make(map[pairKey]*Neighbor)
	for i := range grid.Voxels {
		a := grid.Voxels[i].GrainID
		if a == 0 {
			continue
		}
		x, y, z := grid.Coord(i)
		for _, j := range forwardNeighbors(grid, i, x, y, z) {
			b := grid.Voxels[j].GrainID
			if b == 0 || b == a {
				continue
			}
			k := pairKey{min(a, b), max(a, b)}
			p, ok := pairs[k]
			if !ok {
				p = &Neighbor{}
				pairs[k] = p
			}
			p.Faces++
			p.Area += grid.FaceArea(i, j)
		}
	}
	for i := range g.grains {
		g.grains[i].Neighbors = nil
	}
	for k, p := range pairs {
		g.grains[k.a].Neighbors = append(g.grains[k.a].Neighbors, Neighbor{ID: k.b, Faces: p.Faces, Area: p.Area})
		g.grains[k.b].Neighbors = append(g.grains[k.b].Neighbors, Neighbor{ID: k.a, Faces: p.Faces, Area: p.Area})
	}
	for i := range g.grains {
		sortNeighbors(g.grains[i].Neighbors)
	}
}

func forwardNeighbors(grid *voxel.Grid, i, x, y, z int) []int {
	var out [3]int
	n := 0
	if x < grid.XPoints-1 {
		out[n] = i + 1
		n++
	}
	if y < grid.YPoints-1 {
		out[n] = i + grid.XPoints
		n++
	}
	if z < grid.ZPoints-1 {
		out[n] = i + grid.XPoints*grid.YPoints
		n++
	}
	return out[:n]
}

func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool { return ns[i].ID < ns[j].ID })
}

func (g *Graph) computeStats(grid *voxel.Grid, gr *Grain) {
	n := len(gr.Voxels)
	if n == 0 {
		return
	}
	gr.Volume = float64(n) * grid.VoxelVolume()
	gr.EquivDiameter = 2 * math.Cbrt(gr.Volume*3/(4*math.Pi))

	var sum r3.Vec
	var quality float64
	surface := false
	for _, i := range gr.Voxels {
		sum = r3.Add(sum, grid.Position(i))
		v := &grid.Voxels[i]
		quality += v.ImageQuality
		if v.SurfaceFaces > 0 {
			surface = true
		}
	}
	gr.Centroid = r3.Scale(1/float64(n), sum)
	gr.AvgImageQuality = quality / float64(n)
	gr.SurfaceGrain = surface

	g.computeShape(grid, gr)
	// Twin and colony variants do not average with their parent, so a grain
	// that absorbed them keeps the parent's orientation.
	if !gr.TwinMerged && !gr.ColonyMerged {
		g.computeOrientation(grid, gr)
	}
}

// computeShape integrates the second moments by sampling each voxel at the
// centres of its eight octants, then derives the equivalent ellipsoid.
func (g *Graph) computeShape(grid *voxel.Grid, gr *Grain) {
	dx, dy, dz := grid.XRes/4, grid.YRes/4, grid.ZRes/4
	weight := (grid.XRes / 2) * (grid.YRes / 2) * (grid.ZRes / 2)

	var sxx, syy, szz, sxy, syz, sxz float64
	for _, i := range gr.Voxels {
		p := r3.Sub(grid.Position(i), gr.Centroid)
		for _, ox := range [2]float64{dx, -dx} {
			for _, oy := range [2]float64{dy, -dy} {
				for _, oz := range [2]float64{dz, -dz} {
					x, y, z := p.X+ox, p.Y+oy, p.Z+oz
					sxx += x * x
					syy += y * y
					szz += z * z
					sxy += x * y
					syz += y * z
					sxz += x * z
				}
			}
		}
	}
	sxx, syy, szz = sxx*weight, syy*weight, szz*weight
	sxy, syz, sxz = sxy*weight, syz*weight, sxz*weight

	gr.Moments = Moments{
		Ixx: syy + szz, Iyy: sxx + szz, Izz: sxx + syy,
		Ixy: -sxy, Iyz: -syz, Ixz: -sxz,
	}

	central := mat.NewSymDense(3, []float64{
		sxx, sxy, sxz,
		sxy, syy, syz,
		sxz, syz, szz,
	})
	gr.Omega3 = 0
	if det := mat.Det(central); det > 0 {
		gr.Omega3 = math.Min(1, math.Pow(gr.Volume, 5)/det/sphereOmega3)
	}

	m := gr.Moments
	inertia := mat.NewSymDense(3, []float64{
		m.Ixx, m.Ixy, m.Ixz,
		m.Ixy, m.Iyy, m.Iyz,
		m.Ixz, m.Iyz, m.Izz,
	})
	var eig mat.EigenSym
	if !eig.Factorize(inertia, true) {
		gr.Radii = [3]float64{}
		gr.AspectRatios = [2]float64{}
		gr.AxisEuler = orientation.Euler{}
		return
	}
	// Eigenvalues come back in ascending order: the smallest principal
	// moment belongs to the longest axis.
	vals := eig.Values(nil)
	k := 5 / (2 * gr.Volume)
	semi := func(v float64) float64 { return math.Sqrt(math.Max(0, k*v)) }
	gr.Radii = [3]float64{
		semi(vals[1] + vals[2] - vals[0]),
		semi(vals[0] + vals[2] - vals[1]),
		semi(vals[0] + vals[1] - vals[2]),
	}
	gr.AspectRatios = [2]float64{}
	if gr.Radii[0] > 0 {
		gr.AspectRatios = [2]float64{gr.Radii[1] / gr.Radii[0], gr.Radii[2] / gr.Radii[0]}
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	if mat.Det(&vecs) < 0 {
		for r := 0; r < 3; r++ {
			vecs.Set(r, 2, -vecs.At(r, 2))
		}
	}
	gr.AxisEuler = orientation.QuaternionToEuler(orientation.MatrixToQuaternion(&vecs))
}

// computeOrientation averages the member orientations after moving each to
// its symmetric equivalent nearest a reference. The first pass uses the first
// member as reference; the second pass re-centres on the first average.
func (g *Graph) computeOrientation(grid *voxel.Grid, gr *Grain) {
	ops := g.ops[gr.Phase]
	ref := grid.Voxels[gr.Voxels[0]].Orientation
	for pass := 0; pass < 2; pass++ {
		var sum quat.Number
		for _, i := range gr.Voxels {
			sum = quat.Add(sum, symmetry.NearestEquivalentWith(ops, ref, grid.Voxels[i].Orientation))
		}
		ref = orientation.Normalize(sum)
	}
	gr.AvgOrientation = orientation.Positive(ref)
	gr.Euler = orientation.QuaternionToEuler(gr.AvgOrientation)
}
