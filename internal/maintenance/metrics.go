package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_archive_sweep_runs_total",
			Help: "Total number of archive sweep runs by status.",
		},
		[]string{"status"},
	)
	sweepOrphanObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_archive_orphan_objects_deleted_total",
			Help: "Total number of orphaned archive objects deleted by sweeps.",
		},
	)
	sweepBytesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_archive_bytes_reclaimed_total",
			Help: "Total bytes reclaimed by deleting orphaned archive objects.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		sweepRunsTotal,
		sweepOrphanObjectsTotal,
		sweepBytesReclaimedTotal,
	)
}
