package statistics

import (
	"github.com/markusressel/depth2go/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

const sessionSubsystem = "session"

// RunLister lists all runs held in memory
type RunLister interface {
	Runs() []*session.Run
}

type SessionCollector struct {
	runs RunLister

	runsByState *prometheus.Desc
	failedRuns  *prometheus.Desc
}

func NewSessionCollector(runs RunLister) *SessionCollector {
	return &SessionCollector{
		runs: runs,
		runsByState: prometheus.NewDesc(prometheus.BuildFQName(namespace, sessionSubsystem, "runs"),
			"Number of runs held in memory, by state",
			[]string{"state"}, nil,
		),
		failedRuns: prometheus.NewDesc(prometheus.BuildFQName(namespace, sessionSubsystem, "failed_runs"),
			"Number of runs held in memory that ended because of a measurement, actuation or sink error",
			nil, nil,
		),
	}
}

func (collector *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.runsByState
	ch <- collector.failedRuns
}

// Collect implements required collect function for all prometheus collectors
func (collector *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	active, finished, failed := 0, 0, 0
	for _, run := range collector.runs.Runs() {
		if !run.IsFinished() {
			active++
			continue
		}
		finished++
		if run.Status().Reason.IsFailure() {
			failed++
		}
	}
	ch <- prometheus.MustNewConstMetric(collector.runsByState, prometheus.GaugeValue, float64(active), "active")
	ch <- prometheus.MustNewConstMetric(collector.runsByState, prometheus.GaugeValue, float64(finished), "finished")
	ch <- prometheus.MustNewConstMetric(collector.failedRuns, prometheus.GaugeValue, float64(failed))
}
