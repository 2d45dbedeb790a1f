package geometry

import (
	"testing"

	"dose3d/internal/models"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

func newScoredDetector(t testing.TB, o Options) *Detector {
	d, err := Construct(o)
	require.NoError(t, err)
	require.NoError(t, d.RegisterRunCollection(RunCollection{Name: "Dose3D"}))
	require.NoError(t, d.RegisterRunCollection(RunCollection{Name: "Dose3DVoxelised", Voxelised: true}))
	return d
}

func TestGetScoringIndexDeterministic(t *testing.T) {
	d := newScoredDetector(t, DefaultOptions())

	for _, g := range models.Granularities {
		first, err := d.GetScoringIndex("Dose3DVoxelised", g)
		require.NoError(t, err)
		second, err := d.GetScoringIndex("Dose3DVoxelised", g)
		require.NoError(t, err)

		require.NotEmpty(t, first)
		require.Equal(t, first, second)
	}
}

func TestGetScoringIndexNoCollisions(t *testing.T) {
	for k := 1; k <= 6; k++ {
		o := DefaultOptions()
		o.Cells = models.ID{X: k, Y: k, Z: k}
		d := newScoredDetector(t, o)

		idx, err := d.GetScoringIndex("Dose3D", models.Cell)
		require.NoError(t, err)
		require.Len(t, idx, k*k*k)

		for key, h := range idx {
			require.Equal(t, key, h.CellKey())
			require.Equal(t, h.ID, h.GlobalID)
		}
	}
}

func TestGetScoringIndexVoxelVolumeConservation(t *testing.T) {
	o := DefaultOptions()
	o.Cells = models.ID{X: 2, Y: 2, Z: 2}
	o.Voxels = VoxelGrid{NX: 3, NY: 5, NZ: 7}
	o.CellSize = 13

	d := newScoredDetector(t, o)
	idx, err := d.GetScoringIndex("Dose3DVoxelised", models.Voxel)
	require.NoError(t, err)
	require.Len(t, idx, 8*3*5*7)

	volumes := make(map[models.ID][]float64)
	masses := make(map[models.ID][]float64)
	for key, h := range idx {
		require.Equal(t, key, h.VoxelKey())
		volumes[h.GlobalID] = append(volumes[h.GlobalID], h.Volume)
		masses[h.GlobalID] = append(masses[h.GlobalID], h.Mass)
	}
	require.Len(t, volumes, 8)

	cellVolume := 13.0 * 13 * 13
	for id, v := range volumes {
		require.Len(t, v, 3*5*7)
		require.InDelta(t, cellVolume, floats.Sum(v), 1e-9, "cell %v", id)
		require.InDelta(t, models.MassOf(1.19, cellVolume), floats.Sum(masses[id]), 1e-12)
	}
}

func TestGetScoringIndexVoxelCentres(t *testing.T) {
	o := DefaultOptions()
	o.Cells = models.ID{X: 1, Y: 1, Z: 1}
	o.EnvTranslation = r3.Vec{X: 100}

	d := newScoredDetector(t, o)
	cell := d.Layers()[0].Cells()[0]

	idx, err := d.GetScoringIndex("Dose3DVoxelised", models.Voxel)
	require.NoError(t, err)
	require.Len(t, idx, 64)

	first, ok := idx[models.VoxelKey(cell.ID, models.ID{})]
	require.True(t, ok)
	require.InDelta(t, cell.Centre.X-3.75, first.Centre.X, 1e-9)
	require.InDelta(t, cell.Centre.Y-3.75, first.Centre.Y, 1e-9)
	require.InDelta(t, cell.Centre.Z-3.75, first.Centre.Z, 1e-9)
	require.InDelta(t, first.Centre.X+100, first.GlobalCentre.X, 1e-9)
	require.Equal(t, cell.ID, first.GlobalID)

	last, ok := idx[models.VoxelKey(cell.ID, models.ID{X: 3, Y: 3, Z: 3})]
	require.True(t, ok)
	require.InDelta(t, cell.Centre.X+3.75, last.Centre.X, 1e-9)
	require.InDelta(t, 2.5*2.5*2.5, last.Volume, 1e-12)
}

func TestGetScoringIndexEmptyResults(t *testing.T) {
	d := newScoredDetector(t, DefaultOptions())

	idx, err := d.GetScoringIndex("Unknown", models.Cell)
	require.NoError(t, err)
	require.Empty(t, idx)

	idx, err = d.GetScoringIndex("Dose3D", models.Voxel)
	require.NoError(t, err)
	require.NotNil(t, idx)
	require.Empty(t, idx)

	// cell level indexes cover every cell, voxelised or not
	idx, err = d.GetScoringIndex("Dose3DVoxelised", models.Cell)
	require.NoError(t, err)
	require.Len(t, idx, 64)

	_, err = d.GetScoringIndex("Dose3D", models.Granularity(7))
	require.Error(t, err)
}

func TestGetScoringIndexFreshMaps(t *testing.T) {
	d := newScoredDetector(t, DefaultOptions())

	idx, err := d.GetScoringIndex("Dose3D", models.Cell)
	require.NoError(t, err)
	for k, h := range idx {
		h.Dose = 42
		idx[k] = h
	}

	again, err := d.GetScoringIndex("Dose3D", models.Cell)
	require.NoError(t, err)
	for _, h := range again {
		require.Zero(t, h.Dose)
	}
}

func TestGetScoringIndexDuplicateIDs(t *testing.T) {
	cell := &Cell{ID: models.ID{X: 1, Y: 2, Z: 3}, Size: 10, Density: 1}
	d := &Detector{
		layers:      []*Layer{{cells: []*Cell{cell, cell}}},
		collections: map[string]RunCollection{"Dose3D": {Name: "Dose3D"}},
	}

	idx, err := d.GetScoringIndex("Dose3D", models.Cell)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvariant))
	require.Nil(t, idx)
}

func BenchmarkGetScoringIndexVoxel(b *testing.B) {
	d := newScoredDetector(b, DefaultOptions())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.GetScoringIndex("Dose3DVoxelised", models.Voxel); err != nil {
			b.Fatal(err)
		}
	}
}
