package geometry

import (
	"time"

	"dose3d/internal/models"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// GetScoringIndex walks the detector tree and returns a fresh index of the
// scoring volumes of a run collection. Unregistered collections and
// collections without voxelised cells at voxel granularity yield an empty
// index, not an error.
func (d *Detector) GetScoringIndex(collection string, granularity models.Granularity) (models.Index, error) {
	start := time.Now()
	idx := make(models.Index)

	if _, ok := d.collections[collection]; !ok {
		return idx, nil
	}

	expected := 0
	for _, c := range d.cells() {
		switch granularity {
		case models.Cell:
			expected++
			if err := insertHit(idx, c.Hit().CellKey(), c.Hit()); err != nil {
				return nil, err
			}

		case models.Voxel:
			grid, ok := c.VoxelGrid(collection)
			if !ok {
				continue
			}
			expected += grid.Len()
			for ix := 0; ix < grid.NX; ix++ {
				for iy := 0; iy < grid.NY; iy++ {
					for iz := 0; iz < grid.NZ; iz++ {
						hit := c.VoxelHit(grid, models.ID{X: ix, Y: iy, Z: iz})
						if err := insertHit(idx, hit.VoxelKey(), hit); err != nil {
							return nil, err
						}
					}
				}
			}

		default:
			return nil, errors.New("unknown scoring granularity").
				WithType(ErrTypeConfiguration).
				WithTag("granularity", granularity.String())
		}
	}

	if len(idx) != expected {
		return nil, errors.New("scoring index cardinality mismatch").
			WithType(ErrTypeInvariant).
			WithTag("collection", collection).
			WithTag("expected", expected).
			WithTag("entries", len(idx))
	}

	instrumentIndexBuild(granularity.String(), time.Since(start))
	return idx, nil
}

func insertHit(idx models.Index, key models.Key, hit models.VoxelHit) error {
	if prev, ok := idx[key]; ok {
		return errors.New("scoring index key collision").
			WithType(ErrTypeInvariant).
			WithTag("key", uint64(key)).
			WithTag("global_id", hit.GlobalID.String()).
			WithTag("id", hit.ID.String()).
			WithTag("previous_global_id", prev.GlobalID.String()).
			WithTag("previous_id", prev.ID.String())
	}
	idx[key] = hit
	return nil
}
