package control_loop

import (
	"errors"
	"fmt"
)

var (
	ErrMeasurement    = errors.New("unable to measure depth")
	ErrActuation      = errors.New("unable to apply thrust")
	ErrSink           = errors.New("unable to hand off sample")
	ErrAlreadyStarted = errors.New("control loop has already been started")
	ErrNotRunning     = errors.New("control loop is not running")
)

type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StopReason describes why a run has ended
type StopReason string

const (
	ReasonNone             StopReason = ""
	ReasonStopRequested    StopReason = "stop-requested"
	ReasonCancelled        StopReason = "cancelled"
	ReasonMaxCycles        StopReason = "max-cycles"
	ReasonSettled          StopReason = "settled"
	ReasonMeasurementError StopReason = "measurement-error"
	ReasonActuationError   StopReason = "actuation-error"
	ReasonSinkError        StopReason = "sink-error"
)

// IsFailure returns true if the run ended because of an error
func (r StopReason) IsFailure() bool {
	switch r {
	case ReasonMeasurementError, ReasonActuationError, ReasonSinkError:
		return true
	}
	return false
}

func reasonForError(err error) StopReason {
	switch {
	case errors.Is(err, ErrMeasurement):
		return ReasonMeasurementError
	case errors.Is(err, ErrActuation):
		return ReasonActuationError
	default:
		return ReasonSinkError
	}
}

type Mode string

const (
	// ModeRealtime waits for the remainder of the time step between cycles
	ModeRealtime Mode = "realtime"
	// ModeBatch runs the next cycle immediately
	ModeBatch Mode = "batch"
)

// SettleOptions configures the detection of a vehicle that holds its target depth.
type SettleOptions struct {
	// Window is the number of consecutive cycles considered
	Window int
	// Tolerance is the maximum absolute error (in meters) within the window
	Tolerance float64
}

type Options struct {
	Mode Mode
	// MaxCycles ends the run after the given number of cycles, 0 means unlimited
	MaxCycles int
	// Settle enables the settled detection, nil disables it
	Settle *SettleOptions
}
