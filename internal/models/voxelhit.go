package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ID is an integer address along the three detector axes
type ID struct {
	X, Y, Z int
}

// String returns the id as "(x,y,z)"
func (id ID) String() string {
	return fmt.Sprintf("(%d,%d,%d)", id.X, id.Y, id.Z)
}

// Key is the deterministic hash of a scoring volume address
type Key uint64

// keySeparator delimits the decimal components so that (1,11,1) and
// (11,1,1) never produce the same key string.
const keySeparator = ":"

func keyString(ids ...ID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(keySeparator)
		}
		b.WriteString(strconv.Itoa(id.X))
		b.WriteString(keySeparator)
		b.WriteString(strconv.Itoa(id.Y))
		b.WriteString(keySeparator)
		b.WriteString(strconv.Itoa(id.Z))
	}
	return b.String()
}

// CellKey hashes a cell global id
func CellKey(global ID) Key {
	return Key(xxhash.Sum64String(keyString(global)))
}

// VoxelKey hashes a cell global id followed by the in-cell voxel id
func VoxelKey(global, local ID) Key {
	return Key(xxhash.Sum64String(keyString(global, local)))
}

// VoxelHit is the value record of a single scoring volume: either a whole
// cell or one voxel of a cell sub-grid.
//
// Lengths are in mm, volume in mm3, mass in kg and dose in Gy.
type VoxelHit struct {
	// Centre is the volume centre in the detector (local) frame
	Centre r3.Vec

	// GlobalCentre is the volume centre in the enclosing environment frame
	GlobalCentre r3.Vec

	// ID is the local index: the voxel index within its cell, or the cell
	// id itself for cell-level hits
	ID ID

	// GlobalID is the cell address in the detector frame. Voxels inherit
	// the id of their parent cell.
	GlobalID ID

	Volume float64
	Mass   float64

	// Tagging fields filled by the field-mask and geometric taggers
	MaskTag        float64
	GeoTag         float64
	WeightedGeoTag float64

	// Energy deposit in MeV and the derived dose
	Edep float64
	Dose float64
}

// NewVoxelHit creates a hit with the mass derived once from the medium
// density (g/cm3) and the volume (mm3).
func NewVoxelHit(centre, globalCentre r3.Vec, id, globalID ID, volume, density float64) VoxelHit {
	return VoxelHit{
		Centre:       centre,
		GlobalCentre: globalCentre,
		ID:           id,
		GlobalID:     globalID,
		Volume:       volume,
		Mass:         MassOf(density, volume),
	}
}

// MassOf returns the mass in kg of a volume in mm3 filled with a medium of
// the given density in g/cm3.
func MassOf(density, volume float64) float64 {
	// 1 g/cm3 == 1e-6 kg/mm3
	return density * 1e-6 * volume
}

// CellKey returns the key of the hit's parent cell
func (h VoxelHit) CellKey() Key {
	return CellKey(h.GlobalID)
}

// VoxelKey returns the key of the hit as a voxel of its parent cell
func (h VoxelHit) VoxelKey() Key {
	return VoxelKey(h.GlobalID, h.ID)
}

// IsAligned reports whether both hits describe the same scoring volume.
// With globalAndLocal false only the global ids are compared.
func (h VoxelHit) IsAligned(other VoxelHit, globalAndLocal bool) bool {
	if h.GlobalID != other.GlobalID {
		return false
	}
	return !globalAndLocal || h.ID == other.ID
}

// Cumulate adds the deposit and dose of other into h if both hits are
// aligned. It reports whether the addition happened.
func (h *VoxelHit) Cumulate(other VoxelHit, globalAndLocal bool) bool {
	if !h.IsAligned(other, globalAndLocal) {
		return false
	}
	h.Edep += other.Edep
	h.Dose += other.Dose
	return true
}

// FillTagging sets the field-mask, geometric and weighted geometric tags
func (h *VoxelHit) FillTagging(mask, geo, weightedGeo float64) {
	h.MaskTag = mask
	h.GeoTag = geo
	h.WeightedGeoTag = weightedGeo
}

// String implements fmt.Stringer
func (h VoxelHit) String() string {
	return fmt.Sprintf("Voxel ID %s/%s", h.GlobalID, h.ID)
}
