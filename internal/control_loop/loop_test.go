package control_loop

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/markusressel/depth2go/internal/pid"
	"github.com/markusressel/depth2go/internal/plants"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPlant struct {
	depths       []float64
	depthErr     error
	thrustErr    error
	appliedCount int
	applied      []float64
}

func (p *mockPlant) GetId() string {
	return "mock"
}

func (p *mockPlant) GetDepth() (float64, error) {
	if len(p.depths) <= 0 {
		return 0, p.depthErr
	}
	depth := p.depths[0]
	p.depths = p.depths[1:]
	return depth, nil
}

func (p *mockPlant) ApplyThrust(command float64) error {
	if p.thrustErr != nil {
		return p.thrustErr
	}
	p.appliedCount++
	p.applied = append(p.applied, command)
	return nil
}

func createController(t *testing.T, gains pid.Gains, setpoint float64, dt time.Duration) *pid.Controller {
	controller, err := pid.NewController(gains, setpoint, dt)
	require.NoError(t, err)
	return controller
}

func TestLoop_EmitsExactlyMaxCyclesSamples(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2, I: 0.1, D: 0.5}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	history := samples.NewHistory()
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 100}, history)
	assert.Equal(t, Idle, loop.State())

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.NoError(t, err)
	status := loop.Status()
	assert.Equal(t, Stopped, status.State)
	assert.Equal(t, ReasonMaxCycles, status.Reason)
	assert.Equal(t, 100, status.Cycles)
	assert.GreaterOrEqual(t, status.SaturatedCycles, 1)

	result := history.Snapshot()
	require.Len(t, result, 100)
	for i, sample := range result {
		assert.Equal(t, i, sample.TimeIndex)
		assert.Equal(t, 10.0, sample.Setpoint)
	}
	// cold start is saturated
	assert.True(t, result[0].Saturated)
	assert.Equal(t, 10.0, result[0].Command)
}

func TestLoop_MonotonicConvergence(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	history := samples.NewHistory()
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 200}, history)

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.NoError(t, err)
	result := history.Snapshot()
	for i := 1; i < len(result); i++ {
		assert.GreaterOrEqual(t, result[i].Measurement, result[i-1].Measurement)
		assert.LessOrEqual(t, result[i].Measurement, 10.0)
	}
	depth, _ := plant.GetDepth()
	assert.InDelta(t, 10.0, depth, 0.01)
}

func TestLoop_Settled(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	options := Options{
		Mode:      ModeBatch,
		MaxCycles: 1000,
		Settle: &SettleOptions{
			Window:    5,
			Tolerance: 0.05,
		},
	}
	loop := NewLoop(controller, plant, options)

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.NoError(t, err)
	status := loop.Status()
	assert.Equal(t, ReasonSettled, status.Reason)
	assert.Less(t, status.Cycles, 1000)
	assert.Less(t, math.Abs(status.LastResult.Error), 0.05)
}

func TestLoop_Settled_NeedsFullWindow(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	// already at the target depth
	plant := plants.NewSimulatedPlant("rov", 10, 0.05)
	options := Options{
		Mode: ModeBatch,
		Settle: &SettleOptions{
			Window:    8,
			Tolerance: 0.05,
		},
	}
	loop := NewLoop(controller, plant, options)

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, ReasonSettled, loop.Status().Reason)
	assert.Equal(t, 8, loop.Status().Cycles)
}

func TestLoop_MeasurementError(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	sensorErr := errors.New("pressure sensor offline")
	plant := &mockPlant{depths: []float64{0, 1}, depthErr: sensorErr}
	history := samples.NewHistory()
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 10}, history)

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.ErrorIs(t, err, ErrMeasurement)
	assert.ErrorIs(t, err, sensorErr)
	assert.Equal(t, 2, plant.appliedCount)
	assert.Equal(t, 2, history.Len())
	status := loop.Status()
	assert.Equal(t, Stopped, status.State)
	assert.Equal(t, ReasonMeasurementError, status.Reason)
	assert.True(t, status.Reason.IsFailure())
	assert.Equal(t, err, status.Err)
}

func TestLoop_NonFiniteMeasurement(t *testing.T) {
	for _, depth := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		// GIVEN
		controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
		plant := &mockPlant{depths: []float64{depth}}
		loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 10})

		// WHEN
		err := loop.Run(context.Background())

		// THEN
		assert.ErrorIs(t, err, ErrMeasurement)
		assert.Equal(t, 0, plant.appliedCount)
		assert.Equal(t, 0.0, controller.Integral())
		assert.Equal(t, pid.Result{}, controller.LastResult())
	}
}

func TestLoop_ActuationError(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	actuatorErr := errors.New("thruster not armed")
	plant := &mockPlant{depths: []float64{0, 0, 0}, thrustErr: actuatorErr}
	history := samples.NewHistory()
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 10}, history)

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.ErrorIs(t, err, ErrActuation)
	assert.ErrorIs(t, err, actuatorErr)
	assert.Equal(t, 0, history.Len())
	assert.Equal(t, ReasonActuationError, loop.Status().Reason)
	assert.Equal(t, 0, loop.Status().Cycles)
}

func TestLoop_SinkError(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	history := samples.NewHistory()
	history.Close()
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 10}, history)

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.ErrorIs(t, err, ErrSink)
	assert.ErrorIs(t, err, samples.ErrClosed)
	assert.Equal(t, ReasonSinkError, loop.Status().Reason)
}

func TestLoop_SinkError_StatusMatchesEmittedSamples(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	history := samples.NewHistory()
	displayErr := errors.New("display gone")
	display := samples.SinkFunc(func(sample samples.Sample) error {
		return displayErr
	})
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 5}, history, display)

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.ErrorIs(t, err, ErrSink)
	assert.ErrorIs(t, err, displayErr)
	status := loop.Status()
	assert.Equal(t, ReasonSinkError, status.Reason)
	assert.Equal(t, history.Len(), status.Cycles)
	assert.Equal(t, 1, status.Cycles)
	assert.Equal(t, 0.0, status.Measurement)
	assert.Equal(t, 10.0, status.LastResult.Command)
	assert.Equal(t, 1, status.SaturatedCycles)
	depth, _ := plant.GetDepth()
	assert.Equal(t, 0.5, depth)
}

func TestLoop_RunTwice(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 1})
	require.NoError(t, loop.Run(context.Background()))

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, 1, loop.Status().Cycles)
}

func TestLoop_StopBeforeRun(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	plant := &mockPlant{}
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch})

	// WHEN
	assert.NoError(t, loop.Stop())
	err := loop.Run(context.Background())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, 0, plant.appliedCount)
	assert.Equal(t, ReasonStopRequested, loop.Status().Reason)
	assert.ErrorIs(t, loop.Stop(), ErrNotRunning)
}

func TestLoop_ContextCancelled(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN
	err := loop.Run(ctx)

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, ReasonCancelled, loop.Status().Reason)
	assert.Equal(t, 0, loop.Status().Cycles)
}

func TestLoop_RealtimeStopWithinOneCycle(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 20*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	history := samples.NewHistory()
	loop := NewLoop(controller, plant, Options{Mode: ModeRealtime}, history)

	go func() {
		_ = loop.Run(context.Background())
	}()

	subscription := history.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		_, err := subscription.Next(ctx)
		require.NoError(t, err)
	}

	// WHEN
	err := loop.Stop()

	// THEN
	assert.NoError(t, err)
	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	status := loop.Status()
	assert.Equal(t, Stopped, status.State)
	assert.Equal(t, ReasonStopRequested, status.Reason)
	assert.Equal(t, status.Cycles, history.Len())
}

func TestLoop_Retarget(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2, I: 0.1, D: 0.5}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	history := samples.NewHistory()
	var loop *Loop
	retargetSink := samples.SinkFunc(func(sample samples.Sample) error {
		if sample.TimeIndex == 2 {
			return loop.Retarget(20, true)
		}
		return nil
	})
	loop = NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 6}, history, retargetSink)

	// WHEN
	err := loop.Run(context.Background())

	// THEN
	assert.NoError(t, err)
	result := history.Snapshot()
	require.Len(t, result, 6)
	for _, sample := range result[:3] {
		assert.Equal(t, 10.0, sample.Setpoint)
	}
	for _, sample := range result[3:] {
		assert.Equal(t, 20.0, sample.Setpoint)
	}
	assert.Equal(t, 20.0, loop.Status().Setpoint)
}

func TestLoop_Retarget_Invalid(t *testing.T) {
	// GIVEN
	controller := createController(t, pid.Gains{P: 1.2}, 10, 100*time.Millisecond)
	plant := plants.NewSimulatedPlant("rov", 0, 0.05)
	loop := NewLoop(controller, plant, Options{Mode: ModeBatch, MaxCycles: 1})

	// WHEN
	err := loop.Retarget(math.NaN(), false)

	// THEN
	assert.ErrorIs(t, err, pid.ErrNonFinite)

	// WHEN
	require.NoError(t, loop.Run(context.Background()))
	err = loop.Retarget(5, false)

	// THEN
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, 10.0, controller.Setpoint())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopped", Stopped.String())
}
