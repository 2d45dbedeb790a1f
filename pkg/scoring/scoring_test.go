package scoring

import (
	"context"
	"math"
	"testing"

	"dose3d/internal/models"
	"dose3d/pkg/geometry"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	cellCollection  = "Dose3D"
	voxelCollection = "Dose3DVoxelised"
)

// newDetector builds a 2x1x2 detector of 40 mm cells at a 42 mm pitch
func newDetector(t testing.TB) *geometry.Detector {
	o := geometry.DefaultOptions()
	o.Cells = models.ID{X: 2, Y: 1, Z: 2}
	o.CellSize = 40
	o.CoverWidth = 1
	o.RowShift = false
	o.LayerShift = false

	d, err := geometry.Construct(o)
	require.NoError(t, err)
	require.NoError(t, d.RegisterRunCollection(geometry.RunCollection{Name: cellCollection}))
	require.NoError(t, d.RegisterRunCollection(geometry.RunCollection{Name: voxelCollection, Voxelised: true}))
	return d
}

var cellCentres = []r3.Vec{
	{X: -21, Y: 0, Z: 21},
	{X: 21, Y: 0, Z: 21},
	{X: -21, Y: 0, Z: 63},
	{X: 21, Y: 0, Z: 63},
}

func TestDose(t *testing.T) {
	require.InDelta(t, 1.602176634e-13, Dose(1, 1), 1e-25)
	require.InDelta(t, 2*1.602176634e-13/0.5, Dose(2, 0.5), 1e-25)
	require.Zero(t, Dose(1, 0))
}

func TestAccumulatorDeposit(t *testing.T) {
	d := newDetector(t)
	acc, err := NewAccumulator(d, cellCollection, models.Cell)
	require.NoError(t, err)
	require.Len(t, acc.Result(), 4)

	require.True(t, acc.Deposit(cellCentres[0], 10))
	require.True(t, acc.Deposit(r3.Vec{X: -40, Y: 19, Z: 40}, 5))
	require.False(t, acc.Deposit(r3.Vec{X: 0, Y: 0, Z: 21}, 3))
	require.False(t, acc.Deposit(r3.Vec{X: 500}, 3))

	require.Equal(t, 4, acc.Deposits())
	require.Equal(t, 2, acc.Misses())

	h := acc.Result()[models.CellKey(models.ID{})]
	require.InDelta(t, 15.0, h.Edep, 1e-12)
	require.InDelta(t, Dose(15, h.Mass), h.Dose, 1e-18)

	other := acc.Result()[models.CellKey(models.ID{X: 1, Y: 0, Z: 1})]
	require.Zero(t, other.Edep)
}

func TestAccumulatorVoxelDeposit(t *testing.T) {
	d := newDetector(t)
	acc, err := NewAccumulator(d, voxelCollection, models.Voxel)
	require.NoError(t, err)
	require.Len(t, acc.Result(), 4*64)

	require.True(t, acc.Deposit(r3.Vec{X: -40, Y: -19, Z: 2}, 1))
	h := acc.Result()[models.VoxelKey(models.ID{}, models.ID{})]
	require.Equal(t, 1.0, h.Edep)
	require.InDelta(t, 1000.0, h.Volume, 1e-9)

	// cell level collections have no voxel volumes to score into
	cells, err := NewAccumulator(d, cellCollection, models.Voxel)
	require.NoError(t, err)
	require.Empty(t, cells.Result())
	require.False(t, cells.Deposit(cellCentres[0], 1))
	require.Equal(t, 1, cells.Misses())
}

func TestAccumulatorMerge(t *testing.T) {
	d := newDetector(t)
	a, err := NewAccumulator(d, cellCollection, models.Cell)
	require.NoError(t, err)
	b, err := NewAccumulator(d, cellCollection, models.Cell)
	require.NoError(t, err)

	a.Deposit(cellCentres[0], 1)
	b.Deposit(cellCentres[0], 2)
	b.Deposit(cellCentres[3], 4)
	b.Deposit(r3.Vec{X: 1000}, 4)

	require.NoError(t, a.Merge(b))
	require.Equal(t, 4, a.Deposits())
	require.Equal(t, 1, a.Misses())

	idx := a.Result()
	require.InDelta(t, 3.0, idx[models.CellKey(models.ID{})].Edep, 1e-12)
	require.InDelta(t, 4.0, idx[models.CellKey(models.ID{X: 1, Y: 0, Z: 1})].Edep, 1e-12)

	v, err := NewAccumulator(d, voxelCollection, models.Voxel)
	require.NoError(t, err)
	err = a.Merge(v)
	require.Error(t, err)
	require.True(t, errors.IsType(err, geometry.ErrTypeInvariant))
}

func generateDeposits(n int) []Deposit {
	deposits := make([]Deposit, n)
	for i := range deposits {
		c := cellCentres[i%len(cellCentres)]
		deposits[i] = Deposit{
			Position: r3.Add(c, r3.Vec{X: float64(i%7) - 3, Y: float64(i%11) - 5, Z: float64(i%13) - 6}),
			Edep:     float64(i%5) + 0.5,
		}
	}
	// one deposit in the cover between the cells
	deposits[n-1].Position = r3.Vec{X: 0, Y: 0, Z: 21}
	return deposits
}

func TestScoreMatchesSingleWorker(t *testing.T) {
	d := newDetector(t)
	deposits := generateDeposits(5000)

	for _, g := range models.Granularities {
		single, err := Score(context.Background(), d, voxelCollection, g, deposits, 1)
		require.NoError(t, err)
		parallel, err := Score(context.Background(), d, voxelCollection, g, deposits, 8)
		require.NoError(t, err)

		require.Equal(t, 5000, parallel.Deposits())
		require.Equal(t, 1, parallel.Misses())
		require.Equal(t, single.Misses(), parallel.Misses())

		want := single.Result()
		got := parallel.Result()
		require.Len(t, got, len(want))
		for k, h := range want {
			require.InDelta(t, h.Edep, got[k].Edep, 1e-9)
			require.InDelta(t, h.Dose, got[k].Dose, 1e-18)
		}

		total := 0.0
		for _, dep := range deposits[:len(deposits)-1] {
			total += dep.Edep
		}
		require.InDelta(t, total, Summarize(got).TotalEdep, 1e-6)
	}
}

func TestScoreEmpty(t *testing.T) {
	d := newDetector(t)

	acc, err := Score(context.Background(), d, cellCollection, models.Cell, nil, 4)
	require.NoError(t, err)
	require.Zero(t, acc.Deposits())
	require.Len(t, acc.Result(), 4)

	acc, err = Score(context.Background(), d, "Unknown", models.Cell, generateDeposits(10), 2)
	require.NoError(t, err)
	require.Empty(t, acc.Result())
	require.Equal(t, 10, acc.Misses())
}

func TestScoreCancelled(t *testing.T) {
	d := newDetector(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Score(ctx, d, cellCollection, models.Cell, generateDeposits(100), 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	require.Equal(t, Summary{}, Summarize(models.Index{}))

	d := newDetector(t)
	acc, err := NewAccumulator(d, cellCollection, models.Cell)
	require.NoError(t, err)
	acc.Deposit(cellCentres[0], 2)
	acc.Deposit(cellCentres[1], 6)

	s := Summarize(acc.Result())
	require.Equal(t, 4, s.Volumes)
	require.Equal(t, 2, s.Scored)
	require.InDelta(t, 8.0, s.TotalEdep, 1e-12)

	mass := acc.Result()[models.CellKey(models.ID{})].Mass
	require.InDelta(t, Dose(6, mass), s.MaxDose, 1e-18)
	require.InDelta(t, Dose(8, mass)/4, s.MeanDose, 1e-18)

	// equal cell masses, so the weighted deviation is the population one
	mean := Dose(8, mass) / 4
	a, b := Dose(2, mass), Dose(6, mass)
	std := math.Sqrt(((a-mean)*(a-mean) + (b-mean)*(b-mean) + 2*mean*mean) / 4)
	require.False(t, math.IsNaN(s.StdDose))
	require.InEpsilon(t, std, s.StdDose, 1e-9)
}

func BenchmarkScore(b *testing.B) {
	d := newDetector(b)
	deposits := generateDeposits(10000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Score(context.Background(), d, voxelCollection, models.Voxel, deposits, 0); err != nil {
			b.Fatal(err)
		}
	}
}
