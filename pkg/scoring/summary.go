package scoring

import (
	"dose3d/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds dose statistics over the volumes of an index, in Gy and MeV
type Summary struct {
	Volumes int
	Scored  int

	TotalEdep float64
	MeanDose  float64
	StdDose   float64
	MaxDose   float64
}

// Summarize returns the dose statistics of an accumulated index. Mean and
// standard deviation are mass weighted over the whole index, the masses
// acting as weights and not as sample counts.
func Summarize(idx models.Index) Summary {
	s := Summary{Volumes: len(idx)}
	if len(idx) == 0 {
		return s
	}

	hits := idx.Hits()
	doses := make([]float64, len(hits))
	masses := make([]float64, len(hits))
	edeps := make([]float64, len(hits))
	for i, h := range hits {
		doses[i] = h.Dose
		masses[i] = h.Mass
		edeps[i] = h.Edep
		if h.Edep != 0 {
			s.Scored++
		}
	}

	s.TotalEdep = floats.Sum(edeps)
	s.MaxDose = floats.Max(doses)
	if floats.Sum(masses) > 0 {
		s.MeanDose, s.StdDose = stat.PopMeanStdDev(doses, masses)
	}
	return s
}
