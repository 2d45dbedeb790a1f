package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const kindLabel = "kind"

var (
	exportFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dose3d_export_files_total",
		Help: "The number of export files written by kind.",
	}, []string{
		kindLabel,
	})
)

func instrumentExport(kind string) {
	exportFiles.With(prometheus.Labels{
		kindLabel: kind,
	}).Inc()
}
