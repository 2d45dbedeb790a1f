// Package export serializes hashed scoring indexes into positioning tables,
// alignment maps and placement files. Exporters only read the indexes they
// are given and accept empty voxel indexes.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dose3d/internal/models"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// File names of the fixed exports
const (
	GateRepeaterFile = "generic_repeater.txt"
	LayerPadsFile    = "dose3d_alignment.json"
	SnapshotFile     = "detector_scoring_volume_positioning.db"
	CellsMeshFile    = "detector_cells.stl"
)

// CellPositioningFile returns the cell positioning table name of a shape
func CellPositioningFile(shape models.Shape) string {
	return fmt.Sprintf("detector_%s_cell_positioning.csv", shape.CellLabel())
}

// VoxelPositioningFile returns the voxel positioning table name of a shape
func VoxelPositioningFile(shape models.Shape) string {
	return fmt.Sprintf("detector_%s_%s_voxel_positioning.csv", shape.CellLabel(), shape.VoxelLabel())
}

// WriteFile creates path and streams the output of write into it
func WriteFile(path, kind string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.New("creating export directory failed").
			WithTag("path", path).
			Wrap(err)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.New("creating export file failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		return errors.New("writing export failed").
			WithTag("path", path).
			WithTag("kind", kind).
			Wrap(err)
	}
	if err := w.Flush(); err != nil {
		return errors.New("flushing export failed").
			WithTag("path", path).
			Wrap(err)
	}
	if err := f.Close(); err != nil {
		return errors.New("closing export file failed").
			WithTag("path", path).
			Wrap(err)
	}

	instrumentExport(kind)
	logs.WithTag("path", path).
		WithTag("kind", kind).
		Info("export written")
	return nil
}
