package export

import (
	"fmt"
	"io"

	"dose3d/internal/models"
)

const repeaterHeader = "######    time [s]    rotationAngle[deg]    rotationAxisX    rotationAxisY    rotationAxisZ    CellPosX[mm]    CellPosY[mm]    CellPosZ[mm]\n" +
	"Time     s\nRotation deg\nTranslation mm\n"

// GateRepeater writes the cell placements as a generic repeater table: one
// unrotated placement per cell at its detector frame centre.
func GateRepeater(w io.Writer, cells models.Index) error {
	if _, err := io.WriteString(w, repeaterHeader); err != nil {
		return err
	}
	for _, h := range cells.Hits() {
		if _, err := fmt.Fprintf(w, "0 0 0 1 0 %s %s %s\n",
			ftoa(h.Centre.X), ftoa(h.Centre.Y), ftoa(h.Centre.Z)); err != nil {
			return err
		}
	}
	return nil
}
