package session

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/control_loop"
	"github.com/markusressel/depth2go/internal/persistence"
	"github.com/markusressel/depth2go/internal/pid"
	"github.com/markusressel/depth2go/internal/plants"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/ui"
	cmap "github.com/orcaman/concurrent-map/v2"
)

const (
	DefaultMaxRetainedRuns = 16
)

// SinkFactory creates an additional sink for the run with the given id
type SinkFactory func(runId string) samples.Sink

// RunListener is called for every started run, before its first cycle
type RunListener func(ctx context.Context, run *Run)

type Option func(m *Manager)

func WithPersistence(p persistence.Persistence) Option {
	return func(m *Manager) {
		m.persistence = p
	}
}

func WithSinks(factories ...SinkFactory) Option {
	return func(m *Manager) {
		m.sinkFactories = append(m.sinkFactories, factories...)
	}
}

func WithRunListeners(listeners ...RunListener) Option {
	return func(m *Manager) {
		m.listeners = append(m.listeners, listeners...)
	}
}

// WithMaxRetainedRuns limits the number of finished runs kept in memory
func WithMaxRetainedRuns(count int) Option {
	return func(m *Manager) {
		m.maxRetainedRuns = count
	}
}

// Manager starts, stops and retargets runs on behalf of an operator.
// At most one run is active at any time.
type Manager struct {
	ctx              context.Context
	controllerConfig configuration.ControllerConfig
	plantConfig      configuration.PlantConfig
	loopConfig       configuration.LoopConfig

	persistence     persistence.Persistence
	sinkFactories   []SinkFactory
	listeners       []RunListener
	maxRetainedRuns int

	runs cmap.ConcurrentMap[string, *Run]

	// guards current, serializes Start and Stop
	mu      sync.Mutex
	current *Run
}

// NewManager creates a Manager for the given configuration.
// All runs are cancelled when ctx is done.
func NewManager(ctx context.Context, config configuration.Configuration, options ...Option) *Manager {
	m := &Manager{
		ctx:              ctx,
		controllerConfig: config.Controller,
		plantConfig:      config.Plant,
		loopConfig:       config.Loop,
		maxRetainedRuns:  DefaultMaxRetainedRuns,
		runs:             cmap.New[*Run](),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// NewController creates a fresh PID controller from the given configuration, targeting the given setpoint
func NewController(config configuration.ControllerConfig, setpoint float64) (*pid.Controller, error) {
	policy, err := pid.ParseAntiWindup(config.AntiWindup.String())
	if err != nil {
		return nil, err
	}
	return pid.NewController(
		pid.Gains{P: config.P, I: config.I, D: config.D},
		setpoint,
		config.TimeStep,
		pid.WithMaxThrust(config.MaxThrust),
		pid.WithAntiWindup(policy),
	)
}

// LoopOptions converts the loop configuration
func LoopOptions(config configuration.LoopConfig) control_loop.Options {
	options := control_loop.Options{
		Mode:      control_loop.Mode(config.Mode),
		MaxCycles: config.MaxCycles,
	}
	if config.Settle.Enabled {
		options.Settle = &control_loop.SettleOptions{
			Window:    config.Settle.Window,
			Tolerance: config.Settle.Tolerance,
		}
	}
	return options
}

// Start begins a new run. If setpoint is nil, the configured setpoint is used.
// A run that is still active is stopped first, the new run never shares any
// controller or plant state with a previous one.
func (m *Manager) Start(setpoint *float64) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.controllerConfig.Setpoint
	if setpoint != nil {
		target = *setpoint
	}

	controller, err := NewController(m.controllerConfig, target)
	if err != nil {
		return nil, err
	}

	if m.current != nil && !m.current.IsFinished() {
		ui.Info("Stopping run %s to start a new one...", m.current.Id())
		m.stopAndWait(m.current)
	}

	plant, err := plants.NewPlant(m.plantConfig)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	history := samples.NewHistory()
	sinks := []samples.Sink{history, samples.LoggingSink{RunId: id}}
	for _, factory := range m.sinkFactories {
		sinks = append(sinks, factory(id))
	}

	options := LoopOptions(m.loopConfig)
	run := &Run{
		id:        id,
		startedAt: time.Now(),
		settings: persistence.RunSettings{
			PlantId:    plant.GetId(),
			Gains:      controller.Gains(),
			Setpoint:   controller.Setpoint(),
			TimeStep:   controller.TimeStep(),
			MaxThrust:  controller.MaxThrust(),
			AntiWindup: string(controller.AntiWindup()),
			Mode:       string(options.Mode),
			MaxCycles:  options.MaxCycles,
		},
		loop:     control_loop.NewLoop(controller, plant, options, sinks...),
		plant:    plant,
		history:  history,
		finished: make(chan struct{}),
	}

	m.runs.Set(id, run)
	m.current = run
	m.evictFinishedRuns()

	for _, listener := range m.listeners {
		listener(m.ctx, run)
	}

	go m.execute(run)

	return run, nil
}

func (m *Manager) execute(run *Run) {
	ui.Info("Starting run %s with plant '%s', target depth: %.2f m", run.Id(), run.settings.PlantId, run.settings.Setpoint)

	err := run.loop.Run(m.ctx)
	run.history.Close()
	run.markEnded(time.Now())

	if closer, ok := run.plant.(io.Closer); ok {
		if closeErr := closer.Close(); closeErr != nil {
			ui.Warning("Unable to close plant %s: %v", run.plant.GetId(), closeErr)
		}
	}

	status := run.Status()
	if err != nil {
		ui.ErrorAndNotify("Depth Control Stopped", "Run %s failed after %d cycles: %v", run.Id(), status.Cycles, err)
	} else {
		ui.Info("Run %s finished after %d cycles (%s)", run.Id(), status.Cycles, status.Reason)
	}
	if status.Reason == control_loop.ReasonSettled {
		ui.NotifyInfo("Target Depth Reached", fmt.Sprintf("Holding %.2f m after %d cycles", status.Setpoint, status.Cycles))
	}

	if m.persistence != nil {
		if saveErr := m.persistence.SaveRun(run.Record()); saveErr != nil {
			ui.Warning("Unable to persist run %s: %v", run.Id(), saveErr)
		}
	}

	close(run.finished)
}

func (m *Manager) stopAndWait(run *Run) {
	_ = run.loop.Stop()
	<-run.finished
}

// Stop stops the current run and waits until it has been persisted
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.IsFinished() {
		return control_loop.ErrNotRunning
	}
	m.stopAndWait(m.current)
	return nil
}

// Retarget changes the setpoint of the current run between two cycles
func (m *Manager) Retarget(setpoint float64, reset bool) error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == nil {
		return control_loop.ErrNotRunning
	}
	return current.loop.Retarget(setpoint, reset)
}

// Current returns the most recently started run, which may have finished already
func (m *Manager) Current() (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

func (m *Manager) Get(id string) (*Run, bool) {
	return m.runs.Get(id)
}

// Runs returns all runs held in memory, oldest first
func (m *Manager) Runs() []*Run {
	runs := make([]*Run, 0, m.runs.Count())
	for _, run := range m.runs.Items() {
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt().Before(runs[j].StartedAt())
	})
	return runs
}

// Shutdown stops the current run, if any, and waits for it to finish
func (m *Manager) Shutdown() {
	err := m.Stop()
	if err != nil {
		return
	}
	ui.Info("Depth control stopped")
}

func (m *Manager) evictFinishedRuns() {
	if m.maxRetainedRuns <= 0 {
		return
	}
	runs := m.Runs()
	excess := len(runs) - m.maxRetainedRuns
	for _, run := range runs {
		if excess <= 0 {
			return
		}
		if run.IsFinished() {
			m.runs.Remove(run.Id())
			excess--
		}
	}
}
