package configuration

const (
	// LoopModeRealtime waits for the remainder of the time step between cycles
	LoopModeRealtime = "realtime"
	// LoopModeBatch runs cycles back to back, used for headless simulations
	LoopModeBatch = "batch"
)

type LoopConfig struct {
	Mode Enum `json:"mode"`
	// Stops a run after this many cycles, 0 means unlimited
	MaxCycles int `json:"maxCycles"`
	// Start a run with the configured setpoint when the daemon starts
	AutoStart bool         `json:"autoStart"`
	Settle    SettleConfig `json:"settle"`
}

// SettleConfig stops a run once the absolute error stayed below
// Tolerance for Window consecutive cycles.
type SettleConfig struct {
	Enabled   bool    `json:"enabled"`
	Window    int     `json:"window"`
	Tolerance float64 `json:"tolerance"`
}
