// Package run owns the state of one simulation run: its id, configuration
// and detector tree. Consumers receive what they need from the context
// instead of reaching for shared globals.
package run

import (
	"context"
	"io"
	"path/filepath"

	"dose3d/internal/models"
	"dose3d/pkg/config"
	"dose3d/pkg/export"
	"dose3d/pkg/geometry"
	"dose3d/pkg/materials"
	"dose3d/pkg/scoring"
	"dose3d/pkg/visualization"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Context is the explicit owner of a run. It is built once, then scored and
// exported from a single orchestrating goroutine.
type Context struct {
	ID       uuid.UUID
	Config   *config.Config
	Detector *geometry.Detector

	scored map[string]map[models.Granularity]models.Index
}

// Options maps a configuration onto detector construction options.
// Relative mesh and positioning paths are resolved against the data dir.
func Options(cfg *config.Config) geometry.Options {
	o := geometry.DefaultOptions()
	o.Label = cfg.Detector.Label
	o.Cells = models.ID{X: cfg.Detector.Cells[0], Y: cfg.Detector.Cells[1], Z: cfg.Detector.Cells[2]}
	o.Voxels = geometry.VoxelGrid{NX: cfg.Cell.Voxels[0], NY: cfg.Cell.Voxels[1], NZ: cfg.Cell.Voxels[2]}
	o.CellSize = cfg.Cell.Size
	o.CoverWidth = cfg.Cell.CoverWidth
	o.Medium = cfg.Cell.Medium
	o.Materials = materials.Default().With(cfg.Materials)
	o.TracksAnalysis = cfg.Cell.TracksAnalysis
	o.TopPosition = vec(cfg.Detector.TopPositionInEnv)
	o.EnvTranslation = vec(cfg.Detector.EnvTranslation)
	o.RowShift = cfg.Layer.RowShift
	o.LayerShift = cfg.Layer.LayerShift
	o.MeshPath = cfg.ResolvePath(cfg.Detector.Geometry)
	o.PositioningPath = cfg.ResolvePath(cfg.Layer.Positioning)
	o.CheckEnvelope = cfg.Detector.CheckEnvelope

	if len(cfg.Layer.Mask) > 0 {
		o.Mask = make([][]bool, len(cfg.Layer.Mask))
		for iz, row := range cfg.Layer.Mask {
			o.Mask[iz] = make([]bool, len(row))
			for ix, v := range row {
				o.Mask[iz][ix] = v != 0
			}
		}
	}
	return o
}

func vec(v [3]float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// NewContext constructs the detector described by cfg and registers its run
// collections
func NewContext(cfg *config.Config) (*Context, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	d, err := geometry.Construct(Options(cfg))
	if err != nil {
		return nil, errors.New("constructing detector failed").
			WithType(errors.Type(err)).
			Wrap(err)
	}

	for _, rc := range cfg.Scoring.RunCollections {
		err := d.RegisterRunCollection(geometry.RunCollection{
			Name:      rc.Name,
			Voxelised: rc.Voxelised,
		})
		if err != nil {
			return nil, errors.New("registering run collection failed").
				WithType(errors.Type(err)).
				WithTag("collection", rc.Name).
				Wrap(err)
		}
	}

	c := &Context{
		ID:       uuid.New(),
		Config:   cfg,
		Detector: d,
		scored:   make(map[string]map[models.Granularity]models.Index),
	}
	logs.WithTag("run_id", c.ID.String()).
		WithTag("collections", len(d.RunCollections())).
		Info("run context created")
	return c, nil
}

// Score scores the deposits into a run collection at every granularity the
// collection supports and keeps the results for Export
func (c *Context) Score(ctx context.Context, collection string, deposits []scoring.Deposit, workers int) (map[models.Granularity]*scoring.Accumulator, error) {
	var rc *geometry.RunCollection
	for _, r := range c.Detector.RunCollections() {
		if r.Name == collection {
			rc = &r
			break
		}
	}
	if rc == nil {
		// nothing registered under that name, nothing to accumulate
		return map[models.Granularity]*scoring.Accumulator{}, nil
	}

	granularities := []models.Granularity{models.Cell}
	if rc.Voxelised {
		granularities = append(granularities, models.Voxel)
	}

	results := make(map[models.Granularity]*scoring.Accumulator, len(granularities))
	for _, g := range granularities {
		acc, err := scoring.Score(ctx, c.Detector, collection, g, deposits, workers)
		if err != nil {
			return nil, errors.New("scoring deposits failed").
				WithTag("run_id", c.ID.String()).
				WithTag("collection", collection).
				WithTag("granularity", g.String()).
				Wrap(err)
		}
		results[g] = acc
		c.keep(acc)

		s := scoring.Summarize(acc.Result())
		logs.WithTag("collection", acc.Collection()).
			WithTag("granularity", acc.Granularity().String()).
			WithTag("scored_volumes", s.Scored).
			WithTag("total_edep_mev", s.TotalEdep).
			WithTag("mean_dose_gy", s.MeanDose).
			WithTag("std_dose_gy", s.StdDose).
			WithTag("max_dose_gy", s.MaxDose).
			Info("dose summary")
	}
	return results, nil
}

// keep stores the result of a scoring buffer under its collection and
// granularity, replacing any earlier result
func (c *Context) keep(acc *scoring.Accumulator) {
	byGranularity, ok := c.scored[acc.Collection()]
	if !ok {
		byGranularity = make(map[models.Granularity]models.Index)
		c.scored[acc.Collection()] = byGranularity
	}
	byGranularity[acc.Granularity()] = acc.Result()
}

// Scored returns the accumulated index of a scored collection
func (c *Context) Scored(collection string, g models.Granularity) (models.Index, bool) {
	idx, ok := c.scored[collection][g]
	return idx, ok
}

// exportIndexes returns the cell index of the first collection and the
// voxel index of the first voxelised one, preferring scored results
func (c *Context) exportIndexes() (cells, voxels models.Index, err error) {
	cells, voxels = models.Index{}, models.Index{}

	collections := c.Detector.RunCollections()
	pick := func(name string, g models.Granularity) (models.Index, error) {
		if idx, ok := c.Scored(name, g); ok {
			return idx, nil
		}
		return c.Detector.GetScoringIndex(name, g)
	}

	if len(collections) > 0 {
		if cells, err = pick(collections[0].Name, models.Cell); err != nil {
			return nil, nil, err
		}
	}
	for _, rc := range collections {
		if rc.Voxelised {
			if voxels, err = pick(rc.Name, models.Voxel); err != nil {
				return nil, nil, err
			}
			break
		}
	}
	return cells, voxels, nil
}

// Export writes every positioning and alignment export into dir
func (c *Context) Export(dir string) error {
	cells, voxels, err := c.exportIndexes()
	if err != nil {
		return errors.New("building export indexes failed").
			WithTag("run_id", c.ID.String()).
			Wrap(err)
	}

	shape := c.Detector.Shape()
	size := c.Detector.Options().CellSize
	pads := export.LayerPads(shape, size, cells, voxels)

	files := []struct {
		name  string
		kind  string
		write func(w io.Writer) error
	}{
		{export.CellPositioningFile(shape), "cell_positioning", func(w io.Writer) error {
			return export.CellPositioningCSV(w, cells)
		}},
		{export.VoxelPositioningFile(shape), "voxel_positioning", func(w io.Writer) error {
			return export.VoxelPositioningCSV(w, voxels)
		}},
		{export.GateRepeaterFile, "gate_repeater", func(w io.Writer) error {
			return export.GateRepeater(w, cells)
		}},
		{export.LayerPadsFile, "layer_pads", func(w io.Writer) error {
			return export.WriteLayerPads(w, export.Alignment{
				RunID:    c.ID.String(),
				Cells:    shape.Cells,
				Voxels:   shape.Voxels,
				CellSize: size,
				Layers:   pads,
			})
		}},
		{export.CellsMeshFile, "cells_mesh", func(w io.Writer) error {
			return export.CellsSTL(w, cells, size)
		}},
	}

	for _, f := range files {
		if err := export.WriteFile(filepath.Join(dir, f.name), f.kind, f.write); err != nil {
			return err
		}
	}

	snapshot := filepath.Join(dir, export.SnapshotFile)
	err = export.WriteSnapshot(snapshot, c.ID, map[models.Granularity]models.Index{
		models.Cell:  cells,
		models.Voxel: voxels,
	})
	if err != nil {
		return errors.New("writing positioning snapshot failed").
			WithTag("path", snapshot).
			Wrap(err)
	}

	if c.Config.Output.WriteImages {
		viewer := visualization.NewViewer(cells, shape, size/10)
		if err := viewer.SavePads(pads, filepath.Join(dir, "alignment")); err != nil {
			return errors.New("rendering layer pads failed").Wrap(err)
		}
		if err := viewer.SaveSliceSequence("y", filepath.Join(dir, "dose")); err != nil {
			return errors.New("rendering dose slices failed").Wrap(err)
		}
	}

	logs.WithTag("run_id", c.ID.String()).
		WithTag("dir", dir).
		WithTag("cells", len(cells)).
		WithTag("voxels", len(voxels)).
		Info("exports written")
	return nil
}
