package grain

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// centroid is a grain centroid stored in the k-d tree.
type centroid struct {
	r3.Vec
	id int
}

// Compare implements the kdtree.Comparable interface
func (p centroid) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(centroid)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p centroid) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two centroids
func (p centroid) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(centroid).Vec))
}

// centroids satisfies kdtree.Interface
type centroids []centroid

func (p centroids) Index(i int) kdtree.Comparable         { return p[i] }
func (p centroids) Len() int                              { return len(p) }
func (p centroids) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p centroids) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(centroidPlane{centroids: p, Dim: d}, kdtree.MedianOfRandoms(centroidPlane{centroids: p, Dim: d}, 100))
}

// centroidPlane implements sort.Interface and kdtree.SortSlicer for centroids
type centroidPlane struct {
	centroids
	kdtree.Dim
}

func (p centroidPlane) Less(i, j int) bool {
	return p.centroids[i].Compare(p.centroids[j], p.Dim) < 0
}

func (p centroidPlane) Slice(start, end int) kdtree.SortSlicer {
	return centroidPlane{centroids: p.centroids[start:end], Dim: p.Dim}
}

func (p centroidPlane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}

// FindNeighborhoods sets Neighborhood on every active grain: entry k counts
// the other grains whose centroid lies within (k+1) equivalent radii of the
// grain's own centroid.
func FindNeighborhoods(g *Graph) {
	active := g.Active()
	if len(active) == 0 {
		return
	}
	pts := make(centroids, len(active))
	for i, gr := range active {
		pts[i] = centroid{Vec: gr.Centroid, id: gr.ID}
	}
	tree := kdtree.New(pts, false)

	for _, gr := range active {
		gr.Neighborhood = [3]int{}
		radius := gr.EquivDiameter / 2
		if radius <= 0 {
			continue
		}
		keeper := kdtree.NewDistKeeper(math.Pow(3*radius, 2))
		tree.NearestSet(keeper, centroid{Vec: gr.Centroid, id: gr.ID})
		for _, cd := range keeper.Heap {
			if cd.Comparable == nil {
				continue
			}
			if cd.Comparable.(centroid).id == gr.ID {
				continue
			}
			shell := int(math.Sqrt(cd.Dist) / radius)
			for k := shell; k < 3; k++ {
				gr.Neighborhood[k]++
			}
		}
	}
}
