package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"dose3d/internal/models"
)

var (
	cellHeader = []string{
		"CellIdX", "CellIdY", "CellIdZ",
		"CellPosX[mm]", "CellPosY[mm]", "CellPosZ[mm]",
	}

	voxelHeader = []string{
		"CellIdX", "CellIdY", "CellIdZ",
		"VoxelIdX", "VoxelIdY", "VoxelIdZ",
		"VoxelPosX[mm]", "VoxelPosY[mm]", "VoxelPosZ[mm]",
		"VoxelGlobalPosX[mm]", "VoxelGlobalPosY[mm]", "VoxelGlobalPosZ[mm]",
	}
)

// CellPositioningCSV writes one row per cell: its id and its centre in the
// detector frame.
func CellPositioningCSV(w io.Writer, cells models.Index) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cellHeader); err != nil {
		return err
	}
	for _, h := range cells.Hits() {
		row := []string{
			itoa(h.ID.X), itoa(h.ID.Y), itoa(h.ID.Z),
			ftoa(h.Centre.X), ftoa(h.Centre.Y), ftoa(h.Centre.Z),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// VoxelPositioningCSV writes one row per voxel: the parent cell id, the
// voxel id within the cell and the voxel centre in both frames. An empty
// index yields the header only.
func VoxelPositioningCSV(w io.Writer, voxels models.Index) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(voxelHeader); err != nil {
		return err
	}
	for _, h := range voxels.Hits() {
		row := []string{
			itoa(h.GlobalID.X), itoa(h.GlobalID.Y), itoa(h.GlobalID.Z),
			itoa(h.ID.X), itoa(h.ID.Y), itoa(h.ID.Z),
			ftoa(h.Centre.X), ftoa(h.Centre.Y), ftoa(h.Centre.Z),
			ftoa(h.GlobalCentre.X), ftoa(h.GlobalCentre.Y), ftoa(h.GlobalCentre.Z),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
