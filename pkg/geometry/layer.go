package geometry

import (
	"fmt"

	"dose3d/internal/models"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// cellTemplate holds the properties shared by every cell of a detector
type cellTemplate struct {
	label          string
	size           float64
	voxels         VoxelGrid
	medium         string
	density        float64
	tracksAnalysis bool
	envTranslation r3.Vec
}

func (t cellTemplate) newCell(id models.ID, centre r3.Vec) *Cell {
	return &Cell{
		Label:          fmt.Sprintf("%s_Layer_%d_Cell_%d_%d_%d", t.label, id.Y, id.X, id.Y, id.Z),
		ID:             id,
		Centre:         centre,
		GlobalCentre:   r3.Add(centre, t.envTranslation),
		Size:           t.size,
		Voxels:         t.voxels,
		Medium:         t.medium,
		Density:        t.density,
		TracksAnalysis: t.tracksAnalysis,
	}
}

// Layer is a 2-D grid of cells sharing one id along the stacking axis
type Layer struct {
	Label string

	// ID is the layer position along y
	ID int

	NCellsX, NCellsZ int

	// Base is the centre of the first cell slot before any row shift
	Base r3.Vec

	// Pitch is the distance between neighbouring cell centres
	Pitch float64

	// Shifted reports whether the whole layer is offset by half a pitch
	Shifted bool

	// Mask marks the occupied slots, indexed [iz][ix]. Nil means all.
	Mask [][]bool

	// Positioning holds the cell offsets for file positioned layers
	Positioning []r3.Vec

	cells []*Cell
}

// Cells returns the layer cells in construction order
func (l *Layer) Cells() []*Cell {
	return l.cells
}

// Present reports whether slot (ix, iz) holds a cell
func (l *Layer) Present(ix, iz int) bool {
	if l.Mask == nil {
		return true
	}
	if iz < 0 || iz >= len(l.Mask) || ix < 0 || ix >= len(l.Mask[iz]) {
		return false
	}
	return l.Mask[iz][ix]
}

// IsAnyCellVoxelised reports whether at least one cell has a voxel grid for
// the collection
func (l *Layer) IsAnyCellVoxelised(collection string) bool {
	for _, c := range l.cells {
		if c.IsVoxelised(collection) {
			return true
		}
	}
	return false
}

// placeLattice fills the layer on the regular (x,z) lattice. Odd rows are
// moved by half a pitch when shiftOddRows is set, unless the whole layer is
// already shifted: a cell never moves by more than one half pitch.
func (l *Layer) placeLattice(t cellTemplate, shiftOddRows bool) {
	l.cells = l.cells[:0]
	for iz := 0; iz < l.NCellsZ; iz++ {
		x0 := l.Base.X
		if shiftOddRows && !l.Shifted && iz%2 == 1 {
			x0 += l.Pitch / 2
		}
		for ix := 0; ix < l.NCellsX; ix++ {
			if !l.Present(ix, iz) {
				continue
			}
			centre := r3.Vec{
				X: x0 + float64(ix)*l.Pitch,
				Y: l.Base.Y,
				Z: l.Base.Z + float64(iz)*l.Pitch,
			}
			l.cells = append(l.cells, t.newCell(models.ID{X: ix, Y: l.ID, Z: iz}, centre))
		}
	}
}

// placePositioned consumes the layer offsets in order, wrapping idX at
// NCellsX into the next idZ row.
func (l *Layer) placePositioned(t cellTemplate) error {
	if l.NCellsX <= 0 {
		return errors.New("positioned layer requires a positive row length").
			WithType(ErrTypeConfiguration).
			WithTag("layer", l.ID).
			WithTag("row_length", l.NCellsX)
	}

	l.cells = l.cells[:0]
	ix, iz := 0, 0
	for _, offset := range l.Positioning {
		id := models.ID{X: ix, Y: l.ID, Z: iz}
		l.cells = append(l.cells, t.newCell(id, r3.Add(l.Base, offset)))

		ix++
		if ix == l.NCellsX {
			ix = 0
			iz++
		}
	}

	l.NCellsZ = iz
	if ix > 0 {
		l.NCellsZ++
	}
	return nil
}
