package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"dose3d/internal/models"
	"dose3d/pkg/export"
)

// testIndex creates a cell index whose dose grows with the layer id
func testIndex(shape models.Shape) models.Index {
	idx := models.Index{}
	n := shape.Cells
	for y := 0; y < n.Y; y++ {
		for z := 0; z < n.Z; z++ {
			for x := 0; x < n.X; x++ {
				id := models.ID{X: x, Y: y, Z: z}
				h := models.VoxelHit{ID: id, GlobalID: id, Dose: float64(y + 1)}
				idx[h.CellKey()] = h
			}
		}
	}
	return idx
}

var testShape = models.Shape{Cells: models.ID{X: 4, Y: 3, Z: 2}}

// TestNewViewer verifies that the dose volume is filled from the index
func TestNewViewer(t *testing.T) {
	viewer := NewViewer(testIndex(testShape), testShape, 1)

	if viewer.nx != 4 || viewer.ny != 3 || viewer.nz != 2 {
		t.Errorf("Expected dimensions 4x3x2, got %dx%dx%d", viewer.nx, viewer.ny, viewer.nz)
	}
	if len(viewer.volumeData) != 24 {
		t.Fatalf("Expected 24 values, got %d", len(viewer.volumeData))
	}
	idx, ok := viewer.index(3, 2, 1)
	if !ok || viewer.volumeData[idx] != 3 {
		t.Errorf("Expected dose 3 at (3,2,1), got %f", viewer.volumeData[idx])
	}
	if _, ok := viewer.index(4, 0, 0); ok {
		t.Error("Expected (4,0,0) to be outside the volume")
	}
}

// TestExtractSlice verifies slice dimensions and normalisation
func TestExtractSlice(t *testing.T) {
	viewer := NewViewer(testIndex(testShape), testShape, 1)

	// Layer slices have a uniform dose of layer+1 out of 3
	for y := 0; y < 3; y++ {
		img, err := viewer.ExtractSlice("y", y)
		if err != nil {
			t.Fatalf("Failed to extract Y slice at position %d: %v", y, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != 4 || bounds.Dy() != 2 {
			t.Errorf("Expected Y slice dimensions 4x2, got %dx%d", bounds.Dx(), bounds.Dy())
		}

		gray, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}
		want := uint16(float64(y+1) / 3 * 65535)
		if got := gray.Gray16At(1, 1).Y; got != want {
			t.Errorf("Expected Y slice value %d, got %d", want, got)
		}
	}

	imgX, err := viewer.ExtractSlice("x", 0)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != 2 || b.Dy() != 3 {
		t.Errorf("Expected X slice dimensions 2x3, got %dx%d", b.Dx(), b.Dy())
	}

	imgZ, err := viewer.ExtractSlice("Z", 1)
	if err != nil {
		t.Fatalf("Failed to extract Z slice: %v", err)
	}
	if b := imgZ.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("Expected Z slice dimensions 4x3, got %dx%d", b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", 2); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("x", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestExtractSliceWithoutDose verifies that an unscored volume is black
func TestExtractSliceWithoutDose(t *testing.T) {
	viewer := NewViewer(models.Index{}, testShape, 1)
	img, err := viewer.ExtractSlice("y", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if v := img.(*image.Gray16).Gray16At(0, 0).Y; v != 0 {
		t.Errorf("Expected black pixel, got %d", v)
	}
}

func testPad() export.Pad {
	return export.Pad{
		Name: "Dose3D_MLayer_0",
		Bins: []export.Bin{
			{ID: 1, X1: -10, Z1: 0, X2: 0, Z2: 10},
			{ID: 2, X1: 2, Z1: 0, X2: 12, Z2: 10},
		},
	}
}

// TestRenderPad verifies pad rasterization
func TestRenderPad(t *testing.T) {
	viewer := NewViewer(models.Index{}, testShape, 0.5)

	img, err := viewer.RenderPad(testPad(), nil)
	if err != nil {
		t.Fatalf("Failed to render pad: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 44 || b.Dy() != 20 {
		t.Errorf("Expected pad dimensions 44x20, got %dx%d", b.Dx(), b.Dy())
	}

	gray := img.(*image.Gray16)
	if v := gray.Gray16At(43, 5).Y; v != 65535 {
		t.Errorf("Expected full intensity for the highest bin, got %d", v)
	}
	if v := gray.Gray16At(2, 5).Y; v != 32767 {
		t.Errorf("Expected half intensity for bin 1, got %d", v)
	}
	// cover gap between the bins
	if v := gray.Gray16At(21, 5).Y; v != 0 {
		t.Errorf("Expected black gap, got %d", v)
	}

	img, err = viewer.RenderPad(testPad(), map[int]float64{1: 4})
	if err != nil {
		t.Fatalf("Failed to render pad values: %v", err)
	}
	if v := img.(*image.Gray16).Gray16At(43, 5).Y; v != 0 {
		t.Errorf("Expected black bin without a value, got %d", v)
	}

	if _, err := viewer.RenderPad(export.Pad{Name: "empty"}, nil); err == nil {
		t.Error("Expected error for empty pad, got nil")
	}
	if _, err := NewViewer(models.Index{}, testShape, 0).RenderPad(testPad(), nil); err == nil {
		t.Error("Expected error for zero pixel size, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	viewer := NewViewer(testIndex(testShape), testShape, 1)
	outputDir := filepath.Join(t.TempDir(), "slices")
	if err := viewer.SaveSliceSequence("y", outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for y := 0; y < 3; y++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_y_%03d.jpg", y))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if err := viewer.SaveSliceSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestSavePads verifies that every non-empty pad is written
func TestSavePads(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	pads := []export.LayerPad{{
		Layer: 0,
		Cells: testPad(),
		CellLayers: []export.Pad{
			{Name: "Dose3D_MLayer_0_CLayer_0", Bins: testPad().Bins},
			{Name: "Dose3D_MLayer_0_CLayer_1"},
		},
	}}

	viewer := NewViewer(models.Index{}, testShape, 1)
	outputDir := t.TempDir()
	if err := viewer.SavePads(pads, outputDir); err != nil {
		t.Fatalf("Failed to save pads: %v", err)
	}

	for _, name := range []string{"Dose3D_MLayer_0", "Dose3D_MLayer_0_CLayer_0"} {
		if _, err := os.Stat(filepath.Join(outputDir, name+".jpg")); err != nil {
			t.Errorf("Expected pad image %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outputDir, "Dose3D_MLayer_0_CLayer_1.jpg")); !os.IsNotExist(err) {
		t.Error("Expected no image for an empty pad")
	}
}
