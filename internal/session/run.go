package session

import (
	"sync"
	"time"

	"github.com/markusressel/depth2go/internal/control_loop"
	"github.com/markusressel/depth2go/internal/persistence"
	"github.com/markusressel/depth2go/internal/plants"
	"github.com/markusressel/depth2go/internal/samples"
)

// Run is a single execution of the control loop, from start until it stopped.
// Every Run owns a fresh controller and plant instance.
type Run struct {
	id        string
	startedAt time.Time
	settings  persistence.RunSettings

	loop    *control_loop.Loop
	plant   plants.Plant
	history *samples.History

	mu      sync.Mutex
	endedAt time.Time

	// closed after the run has been stopped, cleaned up and persisted
	finished chan struct{}
}

func (r *Run) Id() string {
	return r.id
}

func (r *Run) StartedAt() time.Time {
	return r.startedAt
}

// EndedAt returns the time the run has stopped, false while it is still running
func (r *Run) EndedAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endedAt, !r.endedAt.IsZero()
}

func (r *Run) Settings() persistence.RunSettings {
	return r.settings
}

// History returns the samples of this run, the History is closed once the run has stopped
func (r *Run) History() *samples.History {
	return r.history
}

func (r *Run) Status() control_loop.Status {
	return r.loop.Status()
}

// Done is closed once the run has stopped and its record has been persisted
func (r *Run) Done() <-chan struct{} {
	return r.finished
}

func (r *Run) IsFinished() bool {
	select {
	case <-r.finished:
		return true
	default:
		return false
	}
}

// Record creates a snapshot of this run in its persisted form
func (r *Run) Record() persistence.RunRecord {
	status := r.loop.Status()
	endedAt, _ := r.EndedAt()

	record := persistence.RunRecord{
		Id:        r.id,
		StartedAt: r.startedAt,
		EndedAt:   endedAt,
		Settings:  r.settings,
		Reason:    string(status.Reason),
		Samples:   r.history.Snapshot(),
	}
	if status.Err != nil {
		record.Error = status.Err.Error()
	}
	return record
}

func (r *Run) markEnded(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endedAt = t
}
