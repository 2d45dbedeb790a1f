package geometry

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceLabel      = "source"
	resultLabel      = "result"
	granularityLabel = "granularity"
)

var (
	constructions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dose3d_geometry_constructions_total",
		Help: "The number of detector constructions by geometry source and result.",
	}, []string{
		sourceLabel,
		resultLabel,
	})

	cellCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dose3d_geometry_cells",
		Help: "The number of cells of the last constructed detector.",
	})

	indexBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dose3d_scoring_index_builds_total",
		Help: "The number of scoring index builds.",
	}, []string{
		granularityLabel,
	})

	indexBuildLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "dose3d_scoring_index_build_seconds",
		Help: "The time to build a scoring index.",
	}, []string{
		granularityLabel,
	})
)

func instrumentConstruction(source string, err error) {
	result := "ok"
	if err != nil {
		result = errors.Type(err)
	}
	constructions.With(prometheus.Labels{
		sourceLabel: source,
		resultLabel: result,
	}).Inc()
}

func setCellCount(n int) {
	cellCount.Set(float64(n))
}

func instrumentIndexBuild(granularity string, d time.Duration) {
	indexBuilds.With(prometheus.Labels{
		granularityLabel: granularity,
	}).Inc()
	indexBuildLatency.With(prometheus.Labels{
		granularityLabel: granularity,
	}).Observe(d.Seconds())
}
