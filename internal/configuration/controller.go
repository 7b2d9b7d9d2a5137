package configuration

import "time"

const (
	AntiWindupNone        = "none"
	AntiWindupConditional = "conditional"
)

// ControllerConfig holds the parameters of the PID depth controller.
type ControllerConfig struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`

	// Target depth in meters, positive values are below the surface
	Setpoint float64 `json:"setpoint"`
	// Fixed duration of a single control cycle
	TimeStep time.Duration `json:"timeStep"`
	// Commands are clamped to [-MaxThrust, +MaxThrust]
	MaxThrust float64 `json:"maxThrust"`
	// One of: none | conditional
	AntiWindup Enum `json:"antiWindup"`
}
