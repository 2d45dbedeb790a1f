// Package visualization renders detector alignment pads and cell dose maps
// as grayscale images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"dose3d/internal/models"
	"dose3d/pkg/export"
)

// Viewer holds a dense per-cell value volume of a detector, indexed by the
// cell global id
type Viewer struct {
	// volumeData holds one value per cell, x fastest then z then y
	volumeData []float64

	// cell counts of the detector
	nx, ny, nz int

	// pixelSize is the pad rendering resolution in mm per pixel
	pixelSize float64
}

// NewViewer creates a viewer over the dose of a cell level index
func NewViewer(cells models.Index, shape models.Shape, pixelSize float64) *Viewer {
	n := shape.Cells
	v := &Viewer{
		volumeData: make([]float64, n.X*n.Y*n.Z),
		nx:         n.X,
		ny:         n.Y,
		nz:         n.Z,
		pixelSize:  pixelSize,
	}
	for _, h := range cells {
		if idx, ok := v.index(h.GlobalID.X, h.GlobalID.Y, h.GlobalID.Z); ok {
			v.volumeData[idx] = h.Dose
		}
	}
	return v
}

func (v *Viewer) index(x, y, z int) (int, bool) {
	if x < 0 || x >= v.nx || y < 0 || y >= v.ny || z < 0 || z >= v.nz {
		return 0, false
	}
	return (y*v.nz+z)*v.nx + x, true
}

func (v *Viewer) peak() float64 {
	m := 0.0
	for _, d := range v.volumeData {
		m = math.Max(m, d)
	}
	return m
}

func gray(value, peak float64) color.Gray16 {
	if peak <= 0 {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, value/peak*65535)))}
}

// ExtractSlice extracts a 2D cell slice along the specified axis, one pixel
// per cell, normalised to the largest value of the volume
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	peak := v.peak()
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Slice along the ZY plane
		if position >= v.nx {
			return nil, fmt.Errorf("position %d exceeds x cells %d", position, v.nx)
		}
		img = image.NewGray16(image.Rect(0, 0, v.nz, v.ny))
		for y := 0; y < v.ny; y++ {
			for z := 0; z < v.nz; z++ {
				idx, _ := v.index(position, y, z)
				img.SetGray16(z, y, gray(v.volumeData[idx], peak))
			}
		}

	case "y", "Y":
		// Slice along the XZ plane, the plane of a layer
		if position >= v.ny {
			return nil, fmt.Errorf("position %d exceeds layers %d", position, v.ny)
		}
		img = image.NewGray16(image.Rect(0, 0, v.nx, v.nz))
		for z := 0; z < v.nz; z++ {
			for x := 0; x < v.nx; x++ {
				idx, _ := v.index(x, position, z)
				img.SetGray16(x, z, gray(v.volumeData[idx], peak))
			}
		}

	case "z", "Z":
		// Slice along the XY plane
		if position >= v.nz {
			return nil, fmt.Errorf("position %d exceeds z cells %d", position, v.nz)
		}
		img = image.NewGray16(image.Rect(0, 0, v.nx, v.ny))
		for y := 0; y < v.ny; y++ {
			for x := 0; x < v.nx; x++ {
				idx, _ := v.index(x, y, position)
				img.SetGray16(x, y, gray(v.volumeData[idx], peak))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// RenderPad rasterizes a layer pad. Each bin is filled with its value from
// values, or with its bin id when values is nil, normalised to the largest
// value of the pad.
func (v *Viewer) RenderPad(pad export.Pad, values map[int]float64) (image.Image, error) {
	if v.pixelSize <= 0 {
		return nil, fmt.Errorf("pixel size must be positive, got %g", v.pixelSize)
	}
	if len(pad.Bins) == 0 {
		return nil, fmt.Errorf("pad %q has no bins", pad.Name)
	}

	minX, minZ := math.Inf(1), math.Inf(1)
	maxX, maxZ := math.Inf(-1), math.Inf(-1)
	peak := 0.0
	value := func(b export.Bin) float64 {
		if values == nil {
			return float64(b.ID)
		}
		return values[b.ID]
	}
	for _, b := range pad.Bins {
		minX, minZ = math.Min(minX, b.X1), math.Min(minZ, b.Z1)
		maxX, maxZ = math.Max(maxX, b.X2), math.Max(maxZ, b.Z2)
		peak = math.Max(peak, value(b))
	}

	width := int(math.Ceil((maxX - minX) / v.pixelSize))
	height := int(math.Ceil((maxZ - minZ) / v.pixelSize))
	img := image.NewGray16(image.Rect(0, 0, width, height))

	for _, b := range pad.Bins {
		c := gray(value(b), peak)
		x1 := int(math.Floor((b.X1 - minX) / v.pixelSize))
		x2 := int(math.Ceil((b.X2 - minX) / v.pixelSize))
		z1 := int(math.Floor((b.Z1 - minZ) / v.pixelSize))
		z2 := int(math.Ceil((b.Z2 - minZ) / v.pixelSize))
		for z := z1; z < z2 && z < height; z++ {
			for x := x1; x < x2 && x < width; x++ {
				img.SetGray16(x, z, c)
			}
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves a sequence of slices along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.nx
	case "y", "Y":
		maxPos = v.ny
	case "z", "Z":
		maxPos = v.nz
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SavePads renders every cell and cell layer pad by bin id into outputDir
func (v *Viewer) SavePads(pads []export.LayerPad, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for _, lp := range pads {
		for _, pad := range append([]export.Pad{lp.Cells}, lp.CellLayers...) {
			if len(pad.Bins) == 0 {
				continue
			}
			img, err := v.RenderPad(pad, nil)
			if err != nil {
				return err
			}
			if err := v.SaveSlice(img, filepath.Join(outputDir, pad.Name+".jpg")); err != nil {
				return err
			}
		}
	}
	return nil
}
