package samples

import (
	"github.com/markusressel/depth2go/internal/ui"
)

// Sample is the observation of a single control cycle.
type Sample struct {
	// TimeIndex is the number of the cycle within its run, starting at 0
	TimeIndex   int     `json:"timeIndex"`
	Measurement float64 `json:"measurement"`
	Command     float64 `json:"command"`

	// Setpoint the command was computed for
	Setpoint  float64 `json:"setpoint"`
	Saturated bool    `json:"saturated"`
}

// Sink receives every Sample of a run, in order.
type Sink interface {
	Ingest(sample Sample) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(sample Sample) error

func (f SinkFunc) Ingest(sample Sample) error {
	return f(sample)
}

// LoggingSink prints every Sample as a debug line
type LoggingSink struct {
	RunId string
}

func (s LoggingSink) Ingest(sample Sample) error {
	saturated := ""
	if sample.Saturated {
		saturated = " (saturated)"
	}
	ui.Debug("Run %s: #%d depth: %.3f m, target: %.3f m, thrust: %.3f%s",
		s.RunId, sample.TimeIndex, sample.Measurement, sample.Setpoint, sample.Command, saturated)
	return nil
}
