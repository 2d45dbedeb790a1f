package export

import (
	"fmt"
	"io"
	"sort"

	"dose3d/internal/models"

	"github.com/segmentio/encoding/json"
)

// Bin is a rectangle of a layer pad in the (x, z) plane of the environment
// frame. Its ID identifies the cell or voxel it covers, starting at 1.
type Bin struct {
	ID int     `json:"id"`
	X1 float64 `json:"x1"`
	Z1 float64 `json:"z1"`
	X2 float64 `json:"x2"`
	Z2 float64 `json:"z2"`
}

// Pad is the projection of one layer, or of one voxel row of a layer, onto
// the layer plane
type Pad struct {
	Name string `json:"name"`
	Bins []Bin  `json:"bins"`
}

// LayerPad holds the cell pad of a layer and, if the layer is voxelised,
// one pad per in-cell voxel index along y
type LayerPad struct {
	Layer      int   `json:"layer"`
	Cells      Pad   `json:"cells"`
	CellLayers []Pad `json:"cellLayers,omitempty"`
}

// Alignment is the document written to LayerPadsFile
type Alignment struct {
	RunID    string     `json:"runId,omitempty"`
	Cells    models.ID  `json:"cells"`
	Voxels   models.ID  `json:"voxels"`
	CellSize float64    `json:"cellSize"`
	Layers   []LayerPad `json:"layers"`
}

// CellBinID returns the alignment bin number of a cell
func CellBinID(shape models.Shape, cell models.ID) int {
	n := shape.Cells
	return (cell.X*n.Y+cell.Y)*n.Z + cell.Z + 1
}

// VoxelBinID returns the alignment bin number of a voxel within its cell
// layer: ids are unique per in-cell y index
func VoxelBinID(shape models.Shape, cell, voxel models.ID) int {
	n, v := shape.Cells, shape.Voxels
	return ((cell.X*n.Z+cell.Z)*v.X+voxel.X)*v.Z + voxel.Z + 1
}

// LayerPads projects the cell and voxel indexes onto the layer planes. The
// voxel index may be empty, in which case no cell layer pads are produced.
func LayerPads(shape models.Shape, cellSize float64, cells, voxels models.Index) []LayerPad {
	byLayer := make(map[int]*LayerPad)
	layer := func(id int) *LayerPad {
		p, ok := byLayer[id]
		if !ok {
			p = &LayerPad{
				Layer: id,
				Cells: Pad{Name: fmt.Sprintf("Dose3D_MLayer_%d", id)},
			}
			byLayer[id] = p
		}
		return p
	}

	half := cellSize / 2
	for _, h := range cells.Hits() {
		p := layer(h.GlobalID.Y)
		c := h.GlobalCentre
		p.Cells.Bins = append(p.Cells.Bins, Bin{
			ID: CellBinID(shape, h.GlobalID),
			X1: c.X - half, Z1: c.Z - half,
			X2: c.X + half, Z2: c.Z + half,
		})
	}

	if shape.Voxels.X > 0 && shape.Voxels.Z > 0 {
		halfX := cellSize / float64(shape.Voxels.X) / 2
		halfZ := cellSize / float64(shape.Voxels.Z) / 2
		cellLayers := make(map[int]map[int]*Pad)
		for _, h := range voxels.Hits() {
			id := h.GlobalID.Y
			if cellLayers[id] == nil {
				cellLayers[id] = make(map[int]*Pad)
			}
			pad, ok := cellLayers[id][h.ID.Y]
			if !ok {
				pad = &Pad{Name: fmt.Sprintf("Dose3D_MLayer_%d_CLayer_%d", id, h.ID.Y)}
				cellLayers[id][h.ID.Y] = pad
			}
			c := h.GlobalCentre
			pad.Bins = append(pad.Bins, Bin{
				ID: VoxelBinID(shape, h.GlobalID, h.ID),
				X1: c.X - halfX, Z1: c.Z - halfZ,
				X2: c.X + halfX, Z2: c.Z + halfZ,
			})
		}

		for id, pads := range cellLayers {
			p := layer(id)
			for _, icl := range sortedKeys(pads) {
				p.CellLayers = append(p.CellLayers, *pads[icl])
			}
		}
	}

	out := make([]LayerPad, 0, len(byLayer))
	for _, id := range sortedKeys(byLayer) {
		out = append(out, *byLayer[id])
	}
	return out
}

// WriteLayerPads encodes the alignment document as indented JSON
func WriteLayerPads(w io.Writer, a Alignment) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// ReadLayerPads decodes a document written by WriteLayerPads
func ReadLayerPads(r io.Reader) (Alignment, error) {
	var a Alignment
	data, err := io.ReadAll(r)
	if err != nil {
		return a, err
	}
	err = json.Unmarshal(data, &a)
	return a, err
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
