// Package materials resolves cell medium names to densities.
package materials

import (
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// ErrTypeUnknownMedium is the error type returned for media missing from a Table
const ErrTypeUnknownMedium = "unknown_medium"

// Table maps a medium name to its density in g/cm3
type Table map[string]float64

// defaults holds the media the detector is usually built from. Names match
// the NIST material names used by the transport kernel.
var defaults = Table{
	"PMMA":                       1.19,
	"G4_PMMA":                    1.19,
	"G4_WATER":                   1.0,
	"Water":                      1.0,
	"G4_AIR":                     0.00120479,
	"G4_POLYSTYRENE":             1.06,
	"G4_PLASTIC_SC_VINYLTOLUENE": 1.032,
	"G4_Al":                      2.699,
	"G4_Si":                      2.33,
	"G4_Cu":                      8.96,
	"G4_Zn":                      7.133,
	"TiO2":                       4.26,
}

// Default returns a copy of the built-in table
func Default() Table {
	t := make(Table, len(defaults))
	for k, v := range defaults {
		t[k] = v
	}
	return t
}

// With returns a copy of t extended (or overridden) by extra
func (t Table) With(extra map[string]float64) Table {
	out := make(Table, len(t)+len(extra))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Density returns the density of the named medium in g/cm3
func (t Table) Density(name string) (float64, error) {
	d, ok := t[name]
	if !ok || d <= 0 {
		return 0, errors.New("medium is not defined").
			WithType(ErrTypeUnknownMedium).
			WithTag("medium", name)
	}
	return d, nil
}

// Names returns the sorted medium names
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
