package statistics

import (
	"github.com/markusressel/depth2go/internal/control_loop"
	"github.com/markusressel/depth2go/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

const controllerSubsystem = "controller"

// RunProvider provides the run that is currently controlled
type RunProvider interface {
	Current() (*session.Run, bool)
}

type ControllerCollector struct {
	runs RunProvider

	running   *prometheus.Desc
	depth     *prometheus.Desc
	setpoint  *prometheus.Desc
	thrust    *prometheus.Desc
	ctrlError *prometheus.Desc
	integral  *prometheus.Desc
	cycles    *prometheus.Desc
	saturated *prometheus.Desc
}

func NewControllerCollector(runs RunProvider) *ControllerCollector {
	labels := []string{"run", "plant"}
	return &ControllerCollector{
		runs: runs,
		running: prometheus.NewDesc(prometheus.BuildFQName(namespace, controllerSubsystem, "running"),
			"1 while the control loop of the current run is active, 0 otherwise",
			labels, nil,
		),
		depth: prometheus.NewDesc(prometheus.BuildFQName(namespace, controllerSubsystem, "depth_meters"),
			"Last measured depth of the vehicle",
			labels, nil,
		),
		setpoint: prometheus.NewDesc(prometheus.BuildFQName(namespace, controllerSubsystem, "setpoint_meters"),
			"Current target depth",
			labels, nil,
		),
		thrust: prometheus.NewDesc(prometheus.BuildFQName(namespace, controllerSubsystem, "thrust"),
			"Last applied (clamped) thrust command",
			labels, nil,
		),
		ctrlError: prometheus.NewDesc(prometheus.BuildFQName(namespace, controllerSubsystem, "error_meters"),
			"Last control error (setpoint - depth)",
			labels, nil,
		),
		integral: prometheus.NewDesc(prometheus.BuildFQName(namespace, controllerSubsystem, "integral"),
			"Accumulated error of the integral term",
			labels, nil,
		),
		cycles: prometheus.NewDesc(prometheus.BuildFQName(namespace, controllerSubsystem, "cycles_total"),
			"Number of completed control cycles",
			labels, nil,
		),
		saturated: prometheus.NewDesc(prometheus.BuildFQName(namespace, controllerSubsystem, "saturated_total"),
			"Number of control cycles with a clamped thrust command",
			labels, nil,
		),
	}
}

func (collector *ControllerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.running
	ch <- collector.depth
	ch <- collector.setpoint
	ch <- collector.thrust
	ch <- collector.ctrlError
	ch <- collector.integral
	ch <- collector.cycles
	ch <- collector.saturated
}

// Collect implements required collect function for all prometheus collectors
func (collector *ControllerCollector) Collect(ch chan<- prometheus.Metric) {
	run, ok := collector.runs.Current()
	if !ok {
		return
	}

	runId := run.Id()
	plantId := run.Settings().PlantId
	status := run.Status()

	running := 0.0
	if status.State == control_loop.Running {
		running = 1
	}

	ch <- prometheus.MustNewConstMetric(collector.running, prometheus.GaugeValue, running, runId, plantId)
	ch <- prometheus.MustNewConstMetric(collector.setpoint, prometheus.GaugeValue, status.Setpoint, runId, plantId)
	ch <- prometheus.MustNewConstMetric(collector.cycles, prometheus.CounterValue, float64(status.Cycles), runId, plantId)
	ch <- prometheus.MustNewConstMetric(collector.saturated, prometheus.CounterValue, float64(status.SaturatedCycles), runId, plantId)
	if status.Cycles <= 0 {
		// no measurement yet
		return
	}
	ch <- prometheus.MustNewConstMetric(collector.depth, prometheus.GaugeValue, status.Measurement, runId, plantId)
	ch <- prometheus.MustNewConstMetric(collector.thrust, prometheus.GaugeValue, status.LastResult.Command, runId, plantId)
	ch <- prometheus.MustNewConstMetric(collector.ctrlError, prometheus.GaugeValue, status.LastResult.Error, runId, plantId)
	ch <- prometheus.MustNewConstMetric(collector.integral, prometheus.GaugeValue, status.LastResult.Integral, runId, plantId)
}
