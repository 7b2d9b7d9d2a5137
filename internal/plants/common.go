package plants

import (
	"errors"
	"fmt"

	"github.com/markusressel/depth2go/internal/configuration"
)

var (
	// ErrNoMeasurement is returned when a plant cannot provide a current depth value
	ErrNoMeasurement = errors.New("no depth measurement available")
)

// Plant is the depth actuation boundary of the vehicle.
//
// Depth is measured in meters, positive downwards. A positive thrust
// command moves the vehicle deeper, a negative one towards the surface.
type Plant interface {
	GetId() string

	// GetDepth returns the current depth of the vehicle
	GetDepth() (float64, error)

	// ApplyThrust applies the given thrust command to the vertical actuator
	ApplyThrust(command float64) error
}

// NewPlant creates a new plant instance for the given configuration.
// Every call returns a fresh instance without any state of previous ones.
func NewPlant(config configuration.PlantConfig) (Plant, error) {
	if config.Simulated != nil {
		gain := DefaultSimulationGain
		if config.Simulated.Gain != nil {
			gain = *config.Simulated.Gain
		}
		return NewSimulatedPlant(config.ID, config.Simulated.InitialDepth, gain), nil
	}

	if config.File != nil {
		return &FilePlant{
			Config: config,
		}, nil
	}

	if config.Cmd != nil {
		return &CmdPlant{
			Config: config,
		}, nil
	}

	if config.Mqtt != nil {
		return NewMqttPlant(config)
	}

	return nil, fmt.Errorf("no matching plant type for plant: %s", config.ID)
}

// actuatorCommand converts a thrust command into the sign convention of the actuator
func actuatorCommand(config configuration.PlantConfig, command float64) float64 {
	if config.InvertThrust {
		return -command
	}
	return command
}
