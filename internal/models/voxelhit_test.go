package models

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestKeysAreDeterministic(t *testing.T) {
	require.Equal(t, CellKey(ID{1, 2, 3}), CellKey(ID{1, 2, 3}))
	require.Equal(t, VoxelKey(ID{1, 2, 3}, ID{0, 1, 0}), VoxelKey(ID{1, 2, 3}, ID{0, 1, 0}))
	require.NotEqual(t, CellKey(ID{1, 2, 3}), VoxelKey(ID{1, 2, 3}, ID{0, 0, 0}))
}

func TestKeysSeparateMultiDigitIDs(t *testing.T) {
	require.NotEqual(t, CellKey(ID{1, 11, 1}), CellKey(ID{11, 1, 1}))
	require.NotEqual(t, CellKey(ID{1, 1, 11}), CellKey(ID{11, 1, 1}))
	require.NotEqual(t, VoxelKey(ID{1, 2, 3}, ID{45, 6, 7}), VoxelKey(ID{1, 2, 34}, ID{5, 6, 7}))
}

func TestNewVoxelHitMass(t *testing.T) {
	// 10 mm PMMA cube: 1 cm3 * 1.19 g/cm3 = 1.19 g
	h := NewVoxelHit(r3.Vec{}, r3.Vec{}, ID{}, ID{}, 1000, 1.19)
	require.InDelta(t, 1.19e-3, h.Mass, 1e-12)
	require.Equal(t, h.CellKey(), CellKey(ID{}))
}

func TestCumulate(t *testing.T) {
	a := VoxelHit{GlobalID: ID{1, 0, 0}, ID: ID{0, 0, 1}, Dose: 1, Edep: 2}
	b := VoxelHit{GlobalID: ID{1, 0, 0}, ID: ID{0, 0, 1}, Dose: 3, Edep: 4}

	require.True(t, a.Cumulate(b, true))
	require.Equal(t, 4.0, a.Dose)
	require.Equal(t, 6.0, a.Edep)

	c := VoxelHit{GlobalID: ID{1, 0, 0}, ID: ID{1, 0, 1}, Dose: 10}
	require.False(t, a.Cumulate(c, true))
	require.Equal(t, 4.0, a.Dose)

	t.Run("global alignment only", func(t *testing.T) {
		require.True(t, a.Cumulate(c, false))
		require.Equal(t, 14.0, a.Dose)
	})
}

func TestFillTagging(t *testing.T) {
	var h VoxelHit
	h.FillTagging(1, 0.5, 0.25)
	require.Equal(t, 1.0, h.MaskTag)
	require.Equal(t, 0.5, h.GeoTag)
	require.Equal(t, 0.25, h.WeightedGeoTag)
}

func TestIndexHitsOrdering(t *testing.T) {
	idx := Index{}
	for _, g := range []ID{{1, 0, 1}, {0, 0, 1}, {1, 0, 0}, {0, 0, 0}} {
		idx[CellKey(g)] = VoxelHit{ID: g, GlobalID: g}
	}
	hits := idx.Hits()
	require.Len(t, hits, 4)
	require.Equal(t, ID{0, 0, 0}, hits[0].GlobalID)
	require.Equal(t, ID{0, 0, 1}, hits[1].GlobalID)
	require.Equal(t, ID{1, 0, 0}, hits[2].GlobalID)
	require.Equal(t, ID{1, 0, 1}, hits[3].GlobalID)
}

func TestGranularityRoundTrip(t *testing.T) {
	for _, g := range Granularities {
		parsed, err := ParseGranularity(g.String())
		require.NoError(t, err)
		require.Equal(t, g, parsed)
	}
	_, err := ParseGranularity("pixel")
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeUnknownGranularity))
}
