// Package geometry builds the detector tree (detector, layers, cells and
// voxel grids) and the hashed scoring indexes derived from it.
package geometry

import (
	"fmt"
	"sort"

	"dose3d/internal/models"
	"dose3d/pkg/materials"
	"dose3d/pkg/stl"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"gonum.org/v1/gonum/spatial/r3"
)

// RunCollection names a scoring campaign and whether it scores per voxel
type RunCollection struct {
	Name      string
	Voxelised bool
}

// Options is the configuration record shared by every construction variant
type Options struct {
	// Label prefixes every layer and cell label
	Label string

	// Cells is the number of cells along x, y (layers) and z. Positioned
	// detectors only use X as the row length.
	Cells models.ID

	// Voxels is the per-cell voxel grid used by voxelised collections
	Voxels VoxelGrid

	// CellSize is the cell edge length and CoverWidth the width of the
	// protective shell around it, both in mm
	CellSize   float64
	CoverWidth float64

	Medium         string
	Materials      materials.Table
	TracksAnalysis bool

	// TopPosition is the detector reference point in the environment frame
	TopPosition r3.Vec

	// EnvTranslation moves the environment frame into the world frame
	EnvTranslation r3.Vec

	// RowShift offsets odd layers and LayerShift odd rows within a layer,
	// both by half a pitch along x
	RowShift   bool
	LayerShift bool

	// Mask marks the occupied (x,z) slots of every standard layer, indexed
	// [iz][ix]. Nil means all slots.
	Mask [][]bool

	MeshPath        string
	PositioningPath string

	// CheckEnvelope requires every cell to lie within the mesh bounds
	CheckEnvelope bool
}

// DefaultOptions returns the 4x4x4 PMMA detector with 4x4x4 voxels
func DefaultOptions() Options {
	return Options{
		Label:      "D3D",
		Cells:      models.ID{X: 4, Y: 4, Z: 4},
		Voxels:     VoxelGrid{NX: 4, NY: 4, NZ: 4},
		CellSize:   10,
		CoverWidth: 1,
		Medium:     "PMMA",
		Materials:  materials.Default(),
		RowShift:   true,
		LayerShift: true,
	}
}

// Pitch returns the distance between neighbouring cell centres
func (o Options) Pitch() float64 {
	return o.CellSize + 2*o.CoverWidth
}

func (o Options) template(density float64) cellTemplate {
	return cellTemplate{
		label:          o.Label,
		size:           o.CellSize,
		voxels:         o.Voxels,
		medium:         o.Medium,
		density:        density,
		tracksAnalysis: o.TracksAnalysis,
		envTranslation: o.EnvTranslation,
	}
}

// Detector is the constructed geometry tree. It is immutable once Construct
// returns, apart from RegisterRunCollection which must complete before any
// concurrent scoring starts.
type Detector struct {
	opts     Options
	source   Source
	envelope *stl.Mesh
	layers   []*Layer
	locator  *Locator

	collections map[string]RunCollection
	order       []string
}

// constructFunc builds the layers of one geometry source
type constructFunc func(o Options, t cellTemplate) ([]*Layer, *stl.Mesh, error)

var constructors = map[Source]constructFunc{
	Standard:                   constructStandard,
	PositioningFromFile:        constructPositioned,
	StlWithPositioningFromFile: constructMeshPositioned,
}

// Construct classifies the geometry source and builds the detector tree.
// On error no geometry is returned.
func Construct(o Options) (*Detector, error) {
	source, err := ClassifySource(o.MeshPath, o.PositioningPath)
	if err != nil {
		instrumentConstruction("Invalid", err)
		return nil, err
	}

	d, err := construct(source, o)
	instrumentConstruction(source.String(), err)
	if err != nil {
		return nil, err
	}

	setCellCount(d.NumCells())
	logs.WithTag("source", source.String()).
		WithTag("layers", len(d.layers)).
		WithTag("cells", d.NumCells()).
		WithTag("shape", d.Shape().CellLabel()).
		Info("detector constructed")
	return d, nil
}

func construct(source Source, o Options) (*Detector, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	table := o.Materials
	if table == nil {
		table = materials.Default()
	}
	density, err := table.Density(o.Medium)
	if err != nil {
		return nil, errors.New("invalid cell medium").
			WithType(ErrTypeConfiguration).
			Wrap(err)
	}

	layers, envelope, err := constructors[source](o, o.template(density))
	if err != nil {
		return nil, err
	}

	d := &Detector{
		opts:        o,
		source:      source,
		envelope:    envelope,
		layers:      layers,
		collections: make(map[string]RunCollection),
	}
	if d.NumCells() == 0 {
		return nil, errors.New("detector has no cells").
			WithType(ErrTypeConfiguration).
			WithTag("source", source.String())
	}

	for _, l := range layers {
		logs.WithTag("layer", l.ID).
			WithTag("cells", len(l.cells)).
			WithTag("shifted", l.Shifted).
			Debug("layer constructed")
	}

	d.locator = newLocator(d.cells())
	return d, nil
}

func (o Options) validate() error {
	bad := func(field string, value any) error {
		return errors.New("invalid detector option").
			WithType(ErrTypeConfiguration).
			WithTag("option", field).
			WithTag("value", value)
	}

	if o.CellSize <= 0 {
		return bad("cell_size", o.CellSize)
	}
	if o.CoverWidth < 0 {
		return bad("cover_width", o.CoverWidth)
	}
	if o.Cells.X <= 0 {
		return bad("cells_x", o.Cells.X)
	}
	if o.PositioningPath == "" && (o.Cells.Y <= 0 || o.Cells.Z <= 0) {
		return bad("cells", o.Cells.String())
	}
	if o.Voxels.NX < 0 || o.Voxels.NY < 0 || o.Voxels.NZ < 0 {
		return bad("voxels", o.Voxels.Dims().String())
	}
	if o.Mask != nil && o.PositioningPath == "" {
		if len(o.Mask) != o.Cells.Z {
			return bad("mask_rows", len(o.Mask))
		}
		for iz, row := range o.Mask {
			if len(row) != o.Cells.X {
				return bad(fmt.Sprintf("mask_row_%d", iz), len(row))
			}
		}
	}
	return nil
}

// constructStandard places nY layers of nX x nZ cells on a regular lattice
// centred on the top position along x and stacked along y.
func constructStandard(o Options, t cellTemplate) ([]*Layer, *stl.Mesh, error) {
	pitch := o.Pitch()
	top := o.TopPosition
	initY := top.Y - float64(o.Cells.Y-1)*pitch/2

	layers := make([]*Layer, 0, o.Cells.Y)
	for iy := 0; iy < o.Cells.Y; iy++ {
		shifted := o.RowShift && iy%2 == 1
		base := r3.Vec{
			X: top.X - float64(o.Cells.X-1)*pitch/2,
			Y: initY + float64(iy)*pitch,
			Z: top.Z + pitch/2,
		}
		if shifted {
			base.X += pitch / 2
		}

		l := &Layer{
			Label:   fmt.Sprintf("%s_Layer_%d", o.Label, iy),
			ID:      iy,
			NCellsX: o.Cells.X,
			NCellsZ: o.Cells.Z,
			Base:    base,
			Pitch:   pitch,
			Shifted: shifted,
			Mask:    o.Mask,
		}
		l.placeLattice(t, o.LayerShift)
		layers = append(layers, l)
	}
	return layers, nil, nil
}

// constructPositioned places cells from the positioning file, one layer per
// group, relative to the top position.
func constructPositioned(o Options, t cellTemplate) ([]*Layer, *stl.Mesh, error) {
	groups, err := ReadPositioningFile(o.PositioningPath)
	if err != nil {
		return nil, nil, err
	}

	layers := make([]*Layer, 0, len(groups))
	for iy, offsets := range groups {
		l := &Layer{
			Label:       fmt.Sprintf("%s_Layer_%d", o.Label, iy),
			ID:          iy,
			NCellsX:     o.Cells.X,
			Base:        o.TopPosition,
			Pitch:       o.Pitch(),
			Positioning: offsets,
		}
		if err := l.placePositioned(t); err != nil {
			return nil, nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil, nil
}

// constructMeshPositioned places cells like constructPositioned inside the
// mesh envelope, which is moved to the top position.
func constructMeshPositioned(o Options, t cellTemplate) ([]*Layer, *stl.Mesh, error) {
	mesh, err := stl.ReadFile(o.MeshPath)
	if err != nil {
		return nil, nil, errors.New("detector envelope mesh not readable").
			WithType(ErrTypeConfiguration).
			WithTag("path", o.MeshPath).
			Wrap(err)
	}
	if len(mesh.Triangles) == 0 {
		return nil, nil, errors.New("detector envelope mesh is empty").
			WithType(ErrTypeConfiguration).
			WithTag("path", o.MeshPath)
	}
	envelope := mesh.Translate(o.TopPosition)

	layers, _, err := constructPositioned(o, t)
	if err != nil {
		return nil, nil, err
	}

	if o.CheckEnvelope {
		bounds := envelope.Bounds()
		for _, l := range layers {
			for _, c := range l.cells {
				if !boxWithin(c.LocalBounds(), bounds) {
					return nil, nil, errors.New("cell outside of the detector envelope").
						WithType(ErrTypeConfiguration).
						WithTag("cell", c.Label).
						WithTag("path", o.MeshPath)
				}
			}
		}
	}
	return layers, envelope, nil
}

func boxWithin(inner, outer r3.Box) bool {
	const eps = 1e-6
	return inner.Min.X >= outer.Min.X-eps && inner.Max.X <= outer.Max.X+eps &&
		inner.Min.Y >= outer.Min.Y-eps && inner.Max.Y <= outer.Max.Y+eps &&
		inner.Min.Z >= outer.Min.Z-eps && inner.Max.Z <= outer.Max.Z+eps
}

// RegisterRunCollection attaches a scoring campaign to the detector. A
// voxelised collection attaches the per-cell voxel grid to every cell.
// Registering the same name twice replaces the previous registration.
func (d *Detector) RegisterRunCollection(rc RunCollection) error {
	if rc.Name == "" {
		return errors.New("run collection without a name").
			WithType(ErrTypeConfiguration)
	}

	if rc.Voxelised {
		for _, c := range d.cells() {
			if err := c.attachVoxelGrid(rc.Name); err != nil {
				return err
			}
		}
	} else {
		for _, c := range d.cells() {
			delete(c.grids, rc.Name)
		}
	}

	if _, ok := d.collections[rc.Name]; !ok {
		d.order = append(d.order, rc.Name)
	}
	d.collections[rc.Name] = rc

	logs.WithTag("collection", rc.Name).
		WithTag("voxelised", rc.Voxelised).
		Debug("run collection registered")
	return nil
}

// RunCollections returns the registered collections in registration order
func (d *Detector) RunCollections() []RunCollection {
	out := make([]RunCollection, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.collections[name])
	}
	return out
}

// Layers returns the layers ordered by id
func (d *Detector) Layers() []*Layer {
	return d.layers
}

// Source returns the geometry source the detector was built from
func (d *Detector) Source() Source {
	return d.source
}

// Envelope returns the translated mesh envelope, nil unless the detector
// was built from a mesh
func (d *Detector) Envelope() *stl.Mesh {
	return d.envelope
}

// Options returns the configuration the detector was built with
func (d *Detector) Options() Options {
	return d.opts
}

// Locator returns the point lookup over the detector cells
func (d *Detector) Locator() *Locator {
	return d.locator
}

// NumCells returns the total number of cells
func (d *Detector) NumCells() int {
	n := 0
	for _, l := range d.layers {
		n += len(l.cells)
	}
	return n
}

// Shape returns the effective lattice. Positioned detectors report the
// number of layers along y and the longest row count along z.
func (d *Detector) Shape() models.Shape {
	shape := models.Shape{
		Cells:  d.opts.Cells,
		Voxels: d.opts.Voxels.Dims(),
	}
	if d.source == Standard {
		return shape
	}

	shape.Cells.Y = len(d.layers)
	shape.Cells.Z = 0
	for _, l := range d.layers {
		if l.NCellsZ > shape.Cells.Z {
			shape.Cells.Z = l.NCellsZ
		}
	}
	return shape
}

// IsAnyCellVoxelised reports whether the layer holds at least one cell with
// a voxel grid for the collection. Unknown layers report false.
func (d *Detector) IsAnyCellVoxelised(layerID int, collection string) bool {
	if layerID < 0 || layerID >= len(d.layers) {
		return false
	}
	return d.layers[layerID].IsAnyCellVoxelised(collection)
}

// Cell returns the cell with the given global id
func (d *Detector) Cell(id models.ID) (*Cell, bool) {
	if id.Y < 0 || id.Y >= len(d.layers) {
		return nil, false
	}
	cells := d.layers[id.Y].cells
	i := sort.Search(len(cells), func(i int) bool {
		c := cells[i].ID
		return c.Z > id.Z || (c.Z == id.Z && c.X >= id.X)
	})
	if i < len(cells) && cells[i].ID == id {
		return cells[i], true
	}
	return nil, false
}

func (d *Detector) cells() []*Cell {
	cells := make([]*Cell, 0, d.NumCells())
	for _, l := range d.layers {
		cells = append(cells, l.cells...)
	}
	return cells
}
