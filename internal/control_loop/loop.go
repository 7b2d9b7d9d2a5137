package control_loop

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/asecurityteam/rolling"
	"github.com/markusressel/depth2go/internal/pid"
	"github.com/markusressel/depth2go/internal/plants"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/markusressel/depth2go/internal/util"
)

// Status is a consistent snapshot of a Loop, taken after the last completed cycle.
type Status struct {
	State State `json:"state"`
	// Cycles is the number of completed cycles
	Cycles int `json:"cycles"`
	// SaturatedCycles is the number of completed cycles with a clamped command
	SaturatedCycles int        `json:"saturatedCycles"`
	Setpoint        float64    `json:"setpoint"`
	Measurement     float64    `json:"measurement"`
	LastResult      pid.Result `json:"lastResult"`
	Reason          StopReason `json:"reason,omitempty"`
	Err             error      `json:"-"`
}

type retarget struct {
	setpoint float64
	reset    bool
}

// Loop drives a Controller and a Plant at a fixed cadence.
//
// The Controller and the Plant are owned by the goroutine executing Run,
// other goroutines interact with a Loop through Stop, Retarget and Status only.
type Loop struct {
	controller *pid.Controller
	plant      plants.Plant
	sinks      []samples.Sink
	options    Options

	mu      sync.Mutex
	status  Status
	pending *retarget

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewLoop creates a Loop in the Idle state.
// Every Sample is handed to all sinks, in the given order.
func NewLoop(controller *pid.Controller, plant plants.Plant, options Options, sinks ...samples.Sink) *Loop {
	if options.Mode == "" {
		options.Mode = ModeRealtime
	}
	return &Loop{
		controller: controller,
		plant:      plant,
		sinks:      sinks,
		options:    options,
		status: Status{
			State:    Idle,
			Setpoint: controller.Setpoint(),
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run executes control cycles until the loop is stopped, the context is cancelled
// or a configured end condition is met. It returns an error only if the run
// ended because of a measurement, actuation or sink failure.
//
// Run may only be called once, a finished Loop cannot be restarted.
func (l *Loop) Run(ctx context.Context) (err error) {
	l.mu.Lock()
	if l.status.State != Idle {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.status.State = Running
	l.mu.Unlock()

	var reason StopReason
	defer func() {
		l.mu.Lock()
		l.status.State = Stopped
		l.status.Reason = reason
		l.status.Err = err
		l.mu.Unlock()
		close(l.done)
	}()

	var ticker *time.Ticker
	if l.options.Mode == ModeRealtime {
		ticker = time.NewTicker(l.controller.TimeStep())
		defer ticker.Stop()
	}

	settle := l.newSettleWindow()

	for timeIndex := 0; ; timeIndex++ {
		if l.options.MaxCycles > 0 && timeIndex >= l.options.MaxCycles {
			reason = ReasonMaxCycles
			return nil
		}

		select {
		case <-l.stop:
			reason = ReasonStopRequested
			return nil
		case <-ctx.Done():
			reason = ReasonCancelled
			return nil
		default:
		}

		if l.applyRetarget() && settle != nil {
			util.FillWindow(settle, l.options.Settle.Window, 2*l.options.Settle.Tolerance)
		}

		result, err := l.cycle(timeIndex)
		if err != nil {
			reason = reasonForError(err)
			return err
		}

		if settle != nil {
			settle.Append(math.Abs(result.Error))
			if util.GetWindowMax(settle) < l.options.Settle.Tolerance {
				ui.Debug("Depth has settled at %.3f m after %d cycles", l.controller.Setpoint(), timeIndex+1)
				reason = ReasonSettled
				return nil
			}
		}

		if ticker != nil {
			select {
			case <-l.stop:
				reason = ReasonStopRequested
				return nil
			case <-ctx.Done():
				reason = ReasonCancelled
				return nil
			case <-ticker.C:
			}
		}
	}
}

// cycle executes exactly one measure, compute, actuate and emit sequence
func (l *Loop) cycle(timeIndex int) (pid.Result, error) {
	measurement, err := l.plant.GetDepth()
	if err != nil {
		return pid.Result{}, fmt.Errorf("%w: %w", ErrMeasurement, err)
	}
	if !util.IsFinite(measurement) {
		return pid.Result{}, fmt.Errorf("%w: plant %s returned %v", ErrMeasurement, l.plant.GetId(), measurement)
	}

	result := l.controller.Step(measurement)

	err = l.plant.ApplyThrust(result.Command)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrActuation, err)
	}

	sample := samples.Sample{
		TimeIndex:   timeIndex,
		Measurement: measurement,
		Command:     result.Command,
		Setpoint:    l.controller.Setpoint(),
		Saturated:   result.Saturated,
	}

	// the plant has moved, the cycle counts even if a sink fails below
	l.mu.Lock()
	l.status.Cycles = timeIndex + 1
	l.status.Measurement = measurement
	l.status.LastResult = result
	l.status.Setpoint = sample.Setpoint
	if result.Saturated {
		l.status.SaturatedCycles++
	}
	l.mu.Unlock()

	for _, sink := range l.sinks {
		if err := sink.Ingest(sample); err != nil {
			return result, fmt.Errorf("%w: %w", ErrSink, err)
		}
	}

	return result, nil
}

func (l *Loop) newSettleWindow() *rolling.PointPolicy {
	if l.options.Settle == nil || l.options.Settle.Window <= 0 {
		return nil
	}
	size := l.options.Settle.Window
	window := util.CreateRollingWindow(size)
	// the window only reports settled once it was completely filled with real errors
	util.FillWindow(window, size, 2*l.options.Settle.Tolerance)
	return window
}

// applyRetarget applies a pending setpoint change, returns true if there was one
func (l *Loop) applyRetarget() bool {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	if pending == nil {
		return false
	}

	// the setpoint has been validated by Retarget
	_ = l.controller.SetSetpoint(pending.setpoint)
	if pending.reset {
		l.controller.Reset()
	}
	ui.Debug("Target depth changed to %.3f m (reset: %v)", pending.setpoint, pending.reset)
	return true
}

// Retarget queues a setpoint change which is applied right before the next cycle.
// If reset is true, the controller history is discarded as well.
// A later call replaces a change that has not been applied yet.
func (l *Loop) Retarget(setpoint float64, reset bool) error {
	if !util.IsFinite(setpoint) {
		return fmt.Errorf("setpoint: %w", pid.ErrNonFinite)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.State == Stopped {
		return ErrNotRunning
	}
	l.pending = &retarget{
		setpoint: setpoint,
		reset:    reset,
	}
	return nil
}

// Stop requests the loop to stop. A running cycle is always completed first.
// Stopping an Idle loop makes its Run return immediately.
func (l *Loop) Stop() error {
	l.mu.Lock()
	state := l.status.State
	l.mu.Unlock()
	if state == Stopped {
		return ErrNotRunning
	}

	l.stopOnce.Do(func() {
		close(l.stop)
	})
	return nil
}

// Done is closed once Run has returned
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loop) State() State {
	return l.Status().State
}

func (l *Loop) Options() Options {
	return l.options
}
