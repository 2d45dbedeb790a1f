package export

import (
	"io"

	"dose3d/internal/models"
	"dose3d/pkg/stl"

	"gonum.org/v1/gonum/spatial/r3"
)

// CellsSTL writes the boxes of every cell in the environment frame as a
// binary STL mesh
func CellsSTL(w io.Writer, cells models.Index, cellSize float64) error {
	half := r3.Vec{X: cellSize / 2, Y: cellSize / 2, Z: cellSize / 2}

	hits := cells.Hits()
	triangles := make([]stl.Triangle, 0, 12*len(hits))
	for _, h := range hits {
		triangles = append(triangles, stl.Box(r3.Box{
			Min: r3.Sub(h.GlobalCentre, half),
			Max: r3.Add(h.GlobalCentre, half),
		})...)
	}
	return stl.Write(w, "dose3d cells", triangles)
}
