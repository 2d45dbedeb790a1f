package geometry

import (
	"fmt"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// ErrTypeConfiguration marks missing or contradictory geometry inputs.
	// Construction never keeps partial geometry after such an error.
	ErrTypeConfiguration = "configuration_error"

	// ErrTypeInvariant marks internal consistency violations such as two
	// scoring volumes hashing to the same key.
	ErrTypeInvariant = "invariant_violation"
)

// Source is the geometry construction strategy, derived from which
// external inputs are configured.
type Source int

const (
	// Standard places cells procedurally on a regular lattice
	Standard Source = iota
	// PositioningFromFile places cells from an external offsets file
	PositioningFromFile
	// StlWithPositioningFromFile places cells from an offsets file inside
	// a mesh envelope
	StlWithPositioningFromFile
)

// String implements fmt.Stringer
func (s Source) String() string {
	switch s {
	case Standard:
		return "Standard"
	case PositioningFromFile:
		return "PositioningFromFile"
	case StlWithPositioningFromFile:
		return "StlWithPositioningFromFile"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// ClassifySource selects the construction strategy. A mesh without cell
// positioning is a configuration error.
func ClassifySource(meshPath, positioningPath string) (Source, error) {
	switch {
	case meshPath == "" && positioningPath == "":
		return Standard, nil
	case meshPath != "" && positioningPath == "":
		return 0, errors.New("mesh based detector geometry requires a cell positioning file").
			WithType(ErrTypeConfiguration).
			WithTag("mesh", meshPath)
	case meshPath == "":
		return PositioningFromFile, nil
	default:
		return StlWithPositioningFromFile, nil
	}
}
