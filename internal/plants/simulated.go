package plants

import "sync"

const (
	// DefaultSimulationGain is the depth change per unit of thrust and cycle
	DefaultSimulationGain = 0.05
)

// SimulatedPlant is a first-order integrator: every applied command
// changes the depth by command * Gain.
type SimulatedPlant struct {
	ID   string  `json:"id"`
	Gain float64 `json:"gain"`

	mu    sync.Mutex
	depth float64
}

// NewSimulatedPlant creates a simulated vehicle at the given depth.
// The simulated actuator always uses the depth2go sign convention,
// there is nothing to invert.
func NewSimulatedPlant(id string, initialDepth float64, gain float64) *SimulatedPlant {
	return &SimulatedPlant{
		ID:    id,
		Gain:  gain,
		depth: initialDepth,
	}
}

func (p *SimulatedPlant) GetId() string {
	return p.ID
}

func (p *SimulatedPlant) GetDepth() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.depth, nil
}

func (p *SimulatedPlant) ApplyThrust(command float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.depth += command * p.Gain
	return nil
}
