package configuration

import "time"

// PlantConfig describes the vehicle (or a simulation of it).
// Exactly one of the sub-configurations must be set.
type PlantConfig struct {
	ID string `json:"id"`
	// Invert the sign of applied thrust commands, for actuators that
	// move the vehicle towards the surface on positive commands
	InvertThrust bool `json:"invertThrust"`

	Simulated *SimulatedPlantConfig `json:"simulated,omitempty"`
	File      *FilePlantConfig      `json:"file,omitempty"`
	Cmd       *CmdPlantConfig       `json:"cmd,omitempty"`
	Mqtt      *MqttPlantConfig      `json:"mqtt,omitempty"`
}

type SimulatedPlantConfig struct {
	InitialDepth float64 `json:"initialDepth"`
	// depth change per unit of thrust and cycle, must be > 0, defaults to 0.05 if not set
	Gain *float64 `json:"gain,omitempty"`
}

type FilePlantConfig struct {
	// file containing the current depth as a decimal number
	DepthPath string `json:"depthPath"`
	// file the thrust command is written to
	ThrustPath string `json:"thrustPath"`
}

type CmdPlantConfig struct {
	// prints the current depth to stdout
	GetDepth *ExecConfig `json:"getDepth"`
	// receives the thrust command as its last argument
	ApplyThrust *ExecConfig   `json:"applyThrust"`
	Timeout     time.Duration `json:"timeout"`
}

type ExecConfig struct {
	Exec string   `json:"exec"`
	Args []string `json:"args"`
}

type MqttPlantConfig struct {
	Broker      string `json:"broker"`
	ClientId    string `json:"clientId"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DepthTopic  string `json:"depthTopic"`
	ThrustTopic string `json:"thrustTopic"`
	Qos         byte   `json:"qos"`
	// depth values older than this are considered stale, 0 disables the check
	MaxAge time.Duration `json:"maxAge"`
}
