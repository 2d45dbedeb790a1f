package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const resultLabel = "result"

var (
	depositCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dose3d_scoring_deposits_total",
		Help: "The number of scored energy deposits by result.",
	}, []string{
		resultLabel,
	})
)

func instrumentDeposits(hits, misses int) {
	depositCounter.With(prometheus.Labels{resultLabel: "hit"}).Add(float64(hits))
	depositCounter.With(prometheus.Labels{resultLabel: "miss"}).Add(float64(misses))
}
