package geometry

import (
	"math"

	"dose3d/internal/models"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// VoxelGrid is the voxel sub-division of a cell for one run collection
type VoxelGrid struct {
	NX, NY, NZ int
}

// Len returns the number of voxels in the grid
func (g VoxelGrid) Len() int {
	return g.NX * g.NY * g.NZ
}

// Dims returns the grid counts as an id triple
func (g VoxelGrid) Dims() models.ID {
	return models.ID{X: g.NX, Y: g.NY, Z: g.NZ}
}

// Pitch returns the voxel edge lengths for a cell of the given size
func (g VoxelGrid) Pitch(size float64) r3.Vec {
	return r3.Vec{
		X: size / float64(g.NX),
		Y: size / float64(g.NY),
		Z: size / float64(g.NZ),
	}
}

// Cell is the smallest placed scoring unit. Cells are created by their
// layer during construction and are read-only afterwards, except for the
// voxel grids attached when a run collection is registered.
type Cell struct {
	Label string

	// ID is the cell address in the detector frame
	ID models.ID

	// Centre is the cell centre in the detector frame, in mm
	Centre r3.Vec

	// GlobalCentre is Centre translated into the environment frame
	GlobalCentre r3.Vec

	// Size is the cell edge length in mm
	Size float64

	// Voxels is the grid used when a run collection asks for voxel scoring
	Voxels VoxelGrid

	Medium         string
	Density        float64
	TracksAnalysis bool

	grids map[string]VoxelGrid
}

// Volume returns the cell volume in mm3
func (c *Cell) Volume() float64 {
	return c.Size * c.Size * c.Size
}

// Bounds returns the cell box in the environment frame
func (c *Cell) Bounds() r3.Box {
	return boxAround(c.GlobalCentre, c.Size)
}

// LocalBounds returns the cell box in the detector frame
func (c *Cell) LocalBounds() r3.Box {
	return boxAround(c.Centre, c.Size)
}

// Contains reports whether the environment frame point p lies in the cell.
// Faces at the lower bound belong to the cell, faces at the upper bound
// belong to the neighbour.
func (c *Cell) Contains(p r3.Vec) bool {
	b := c.Bounds()
	return p.X >= b.Min.X && p.X < b.Max.X &&
		p.Y >= b.Min.Y && p.Y < b.Max.Y &&
		p.Z >= b.Min.Z && p.Z < b.Max.Z
}

// IsVoxelised reports whether the cell has a voxel grid for the collection
func (c *Cell) IsVoxelised(collection string) bool {
	_, ok := c.grids[collection]
	return ok
}

// VoxelGrid returns the voxel grid attached for the collection
func (c *Cell) VoxelGrid(collection string) (VoxelGrid, bool) {
	g, ok := c.grids[collection]
	return g, ok
}

func (c *Cell) attachVoxelGrid(collection string) error {
	if c.Voxels.Len() <= 0 {
		return errors.New("voxel scoring requested for a cell without voxels").
			WithType(ErrTypeConfiguration).
			WithTag("cell", c.Label).
			WithTag("collection", collection).
			WithTag("voxels", c.Voxels.Dims().String())
	}
	if c.grids == nil {
		c.grids = make(map[string]VoxelGrid)
	}
	c.grids[collection] = c.Voxels
	return nil
}

// VoxelCentre returns the centre of voxel v in the detector frame
func (c *Cell) VoxelCentre(g VoxelGrid, v models.ID) r3.Vec {
	pitch := g.Pitch(c.Size)
	half := c.Size / 2
	return r3.Vec{
		X: c.Centre.X - half + (float64(v.X)+0.5)*pitch.X,
		Y: c.Centre.Y - half + (float64(v.Y)+0.5)*pitch.Y,
		Z: c.Centre.Z - half + (float64(v.Z)+0.5)*pitch.Z,
	}
}

// VoxelAt returns the voxel of grid g holding the environment frame point p.
// Points outside the cell report false.
func (c *Cell) VoxelAt(g VoxelGrid, p r3.Vec) (models.ID, bool) {
	if !c.Contains(p) {
		return models.ID{}, false
	}
	b := c.Bounds()
	pitch := g.Pitch(c.Size)
	return models.ID{
		X: voxelIndex(p.X-b.Min.X, pitch.X, g.NX),
		Y: voxelIndex(p.Y-b.Min.Y, pitch.Y, g.NY),
		Z: voxelIndex(p.Z-b.Min.Z, pitch.Z, g.NZ),
	}, true
}

func voxelIndex(offset, pitch float64, n int) int {
	i := int(math.Floor(offset / pitch))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Hit returns the cell level scoring record
func (c *Cell) Hit() models.VoxelHit {
	return models.NewVoxelHit(c.Centre, c.GlobalCentre, c.ID, c.ID, c.Volume(), c.Density)
}

// VoxelHit returns the scoring record of voxel v of grid g
func (c *Cell) VoxelHit(g VoxelGrid, v models.ID) models.VoxelHit {
	pitch := g.Pitch(c.Size)
	centre := c.VoxelCentre(g, v)
	global := r3.Add(centre, r3.Sub(c.GlobalCentre, c.Centre))
	return models.NewVoxelHit(centre, global, v, c.ID, pitch.X*pitch.Y*pitch.Z, c.Density)
}

func boxAround(centre r3.Vec, size float64) r3.Box {
	half := r3.Vec{X: size / 2, Y: size / 2, Z: size / 2}
	return r3.Box{Min: r3.Sub(centre, half), Max: r3.Add(centre, half)}
}
