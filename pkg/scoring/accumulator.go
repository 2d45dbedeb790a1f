// Package scoring accumulates energy deposits into the scoring volumes of a
// constructed detector.
package scoring

import (
	"dose3d/internal/models"
	"dose3d/pkg/geometry"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// joulesPerMeV converts an energy deposit in MeV to J
const joulesPerMeV = 1.602176634e-13

// Dose returns the dose in Gy of an energy deposit in MeV into a mass in kg
func Dose(edepMeV, massKg float64) float64 {
	if massKg <= 0 {
		return 0
	}
	return edepMeV * joulesPerMeV / massKg
}

// Deposit is an energy deposit at a point of the environment frame
type Deposit struct {
	Position r3.Vec

	// Edep is the deposited energy in MeV
	Edep float64
}

// Accumulator is a per-worker scoring buffer over its own copy of a run
// collection index. It is not safe for concurrent use; workers merge their
// buffers once done.
type Accumulator struct {
	collection  string
	granularity models.Granularity
	locator     *geometry.Locator
	hits        models.Index
	deposits    int
	misses      int
}

// NewAccumulator builds a fresh index of the collection at the given
// granularity and returns an empty buffer over it.
func NewAccumulator(d *geometry.Detector, collection string, granularity models.Granularity) (*Accumulator, error) {
	idx, err := d.GetScoringIndex(collection, granularity)
	if err != nil {
		return nil, errors.New("building scoring buffer failed").
			WithTag("collection", collection).
			WithTag("granularity", granularity.String()).
			Wrap(err)
	}
	return &Accumulator{
		collection:  collection,
		granularity: granularity,
		locator:     d.Locator(),
		hits:        idx,
	}, nil
}

// Deposit adds an energy deposit to the volume holding pos. Deposits
// outside every scoring volume are counted as misses.
func (a *Accumulator) Deposit(pos r3.Vec, edepMeV float64) bool {
	a.deposits++

	key, ok := a.locator.Key(pos, a.collection, a.granularity)
	if !ok {
		a.misses++
		return false
	}
	h, ok := a.hits[key]
	if !ok {
		a.misses++
		return false
	}

	h.Edep += edepMeV
	h.Dose += Dose(edepMeV, h.Mass)
	a.hits[key] = h
	return true
}

// Merge adds the deposits of other into a. Both buffers must cover the same
// collection and granularity.
func (a *Accumulator) Merge(other *Accumulator) error {
	if other.collection != a.collection || other.granularity != a.granularity {
		return errors.New("merging scoring buffers of different collections").
			WithType(geometry.ErrTypeInvariant).
			WithTag("collection", a.collection).
			WithTag("other_collection", other.collection).
			WithTag("granularity", a.granularity.String()).
			WithTag("other_granularity", other.granularity.String())
	}

	globalAndLocal := a.granularity == models.Voxel
	for key, h := range other.hits {
		if h.Edep == 0 && h.Dose == 0 {
			continue
		}
		target, ok := a.hits[key]
		if !ok || !target.Cumulate(h, globalAndLocal) {
			return errors.New("scoring buffers are not aligned").
				WithType(geometry.ErrTypeInvariant).
				WithTag("collection", a.collection).
				WithTag("global_id", h.GlobalID.String()).
				WithTag("id", h.ID.String())
		}
		a.hits[key] = target
	}
	a.deposits += other.deposits
	a.misses += other.misses
	return nil
}

// Result returns the accumulated index
func (a *Accumulator) Result() models.Index {
	return a.hits
}

// Collection returns the run collection the buffer scores into
func (a *Accumulator) Collection() string {
	return a.collection
}

// Granularity returns the scoring granularity of the buffer
func (a *Accumulator) Granularity() models.Granularity {
	return a.granularity
}

// Deposits returns the number of deposits offered to the buffer
func (a *Accumulator) Deposits() int {
	return a.deposits
}

// Misses returns the number of deposits outside every scoring volume
func (a *Accumulator) Misses() int {
	return a.misses
}
