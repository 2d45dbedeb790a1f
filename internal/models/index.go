package models

import (
	"fmt"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// ErrTypeUnknownGranularity is the error type of an unparsable granularity
const ErrTypeUnknownGranularity = "unknown_granularity"

// Granularity selects the scoring volume of a hashed index
type Granularity int

const (
	// Cell scores one volume per cell
	Cell Granularity = iota
	// Voxel scores one volume per voxel of each voxelised cell
	Voxel
)

// Granularities lists every supported granularity in export order
var Granularities = []Granularity{Cell, Voxel}

// String returns the granularity name used in logs, metrics and exports
func (g Granularity) String() string {
	switch g {
	case Cell:
		return "Cell"
	case Voxel:
		return "Voxel"
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// ParseGranularity converts a name produced by String back into a Granularity
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "Cell", "cell":
		return Cell, nil
	case "Voxel", "voxel":
		return Voxel, nil
	}
	return 0, errors.Newf("unknown granularity %q", s).
		WithType(ErrTypeUnknownGranularity).
		WithTag("granularity", s)
}

// Index maps the hashed address of a scoring volume to its hit record.
// An empty index means "nothing to score" and is never an error.
type Index map[Key]VoxelHit

// Hits returns the hits ordered by global id then local id, so that every
// consumer sees the same order regardless of map iteration.
func (idx Index) Hits() []VoxelHit {
	hits := make([]VoxelHit, 0, len(idx))
	for _, h := range idx {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		return lessHit(hits[i], hits[j])
	})
	return hits
}

func lessID(a, b ID) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

func lessHit(a, b VoxelHit) bool {
	if a.GlobalID != b.GlobalID {
		return lessID(a.GlobalID, b.GlobalID)
	}
	return lessID(a.ID, b.ID)
}

// Shape describes the effective lattice of a constructed detector
type Shape struct {
	// Cells is the number of cells along each axis. For file positioned
	// detectors Y is the number of layers and Z the longest row count.
	Cells ID

	// Voxels is the per-cell voxel grid
	Voxels ID
}

// CellLabel renders the cell counts as "nXxnYxnZ"
func (s Shape) CellLabel() string {
	return fmt.Sprintf("%dx%dx%d", s.Cells.X, s.Cells.Y, s.Cells.Z)
}

// VoxelLabel renders the per-cell voxel counts as "vXxvYxvZ"
func (s Shape) VoxelLabel() string {
	return fmt.Sprintf("%dx%dx%d", s.Voxels.X, s.Voxels.Y, s.Voxels.Z)
}
