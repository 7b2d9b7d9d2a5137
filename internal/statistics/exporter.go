package statistics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "depth2go"
)

// RegisterCollectors registers the controller and session collectors
// for the runs of the given manager.
func RegisterCollectors(registerer prometheus.Registerer, runs Runs) error {
	collectors := []prometheus.Collector{
		NewControllerCollector(runs),
		NewSessionCollector(runs),
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// Runs provides access to the current run and all runs held in memory
type Runs interface {
	RunProvider
	RunLister
}
