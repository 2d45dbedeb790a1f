package geometry

import (
	"dose3d/internal/models"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// locatorCandidates is the number of nearest cell centres checked for
// containment. On shifted lattices the nearest centre is not always the
// cell holding the point, but the holding cell is always among the first
// few neighbours.
const locatorCandidates = 8

// cellPoint is a cell centre in the environment frame
type cellPoint struct {
	r3.Vec
	cell *Cell
}

// Compare implements the kdtree.Comparable interface
func (p cellPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(cellPoint)
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
func (p cellPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p cellPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(cellPoint)
	d := r3.Sub(p.Vec, q.Vec)
	return r3.Dot(d, d)
}

// cellPoints satisfies kdtree.Interface
type cellPoints []cellPoint

func (p cellPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p cellPoints) Len() int                              { return len(p) }
func (p cellPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p cellPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(cellPlane{cellPoints: p, Dim: d}, kdtree.MedianOfRandoms(cellPlane{cellPoints: p, Dim: d}, 100))
}

// cellPlane implements sort.Interface and kdtree.SortSlicer for cellPoints
type cellPlane struct {
	cellPoints
	kdtree.Dim
}

func (p cellPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.cellPoints[i].X < p.cellPoints[j].X
	case 1:
		return p.cellPoints[i].Y < p.cellPoints[j].Y
	case 2:
		return p.cellPoints[i].Z < p.cellPoints[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p cellPlane) Slice(start, end int) kdtree.SortSlicer {
	return cellPlane{cellPoints: p.cellPoints[start:end], Dim: p.Dim}
}

func (p cellPlane) Swap(i, j int) {
	p.cellPoints[i], p.cellPoints[j] = p.cellPoints[j], p.cellPoints[i]
}

// Locator finds the cell or voxel holding a point of the environment frame.
// It is built once during construction and safe for concurrent use.
type Locator struct {
	tree *kdtree.Tree
}

func newLocator(cells []*Cell) *Locator {
	if len(cells) == 0 {
		return &Locator{}
	}
	points := make(cellPoints, len(cells))
	for i, c := range cells {
		points[i] = cellPoint{Vec: c.GlobalCentre, cell: c}
	}
	return &Locator{tree: kdtree.New(points, true)}
}

// Cell returns the cell holding p
func (l *Locator) Cell(p r3.Vec) (*Cell, bool) {
	if l == nil || l.tree == nil {
		return nil, false
	}

	keeper := kdtree.NewNKeeper(locatorCandidates)
	l.tree.NearestSet(keeper, cellPoint{Vec: p})

	var found *Cell
	best := 0.0
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable == nil {
			continue
		}
		c := item.Comparable.(cellPoint).cell
		if !c.Contains(p) {
			continue
		}
		if found == nil || item.Dist < best {
			found, best = c, item.Dist
		}
	}
	return found, found != nil
}

// Key returns the scoring key of the volume holding p for the given
// collection and granularity. At voxel granularity cells without a voxel
// grid for the collection report false.
func (l *Locator) Key(p r3.Vec, collection string, granularity models.Granularity) (models.Key, bool) {
	c, ok := l.Cell(p)
	if !ok {
		return 0, false
	}

	switch granularity {
	case models.Cell:
		return models.CellKey(c.ID), true
	case models.Voxel:
		grid, ok := c.VoxelGrid(collection)
		if !ok {
			return 0, false
		}
		v, ok := c.VoxelAt(grid, p)
		if !ok {
			return 0, false
		}
		return models.VoxelKey(c.ID, v), true
	}
	return 0, false
}
