package configuration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/markusressel/depth2go/internal/pid"
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/markusressel/depth2go/internal/util"
	"golang.org/x/exp/slices"
)

func Validate() error {
	return validateConfig(&CurrentConfig)
}

func validateConfig(config *Configuration) error {
	if err := validateController(&config.Controller); err != nil {
		return err
	}
	if err := validatePlant(&config.Plant); err != nil {
		return err
	}
	if err := validateLoop(&config.Loop); err != nil {
		return err
	}
	if err := validateTelemetry(&config.Telemetry); err != nil {
		return err
	}
	if config.Api.Enabled && !isValidPort(config.Api.Port) {
		return fmt.Errorf("api: invalid port %d", config.Api.Port)
	}
	if config.Statistics.Enabled && !isValidPort(config.Statistics.Port) {
		return fmt.Errorf("statistics: invalid port %d", config.Statistics.Port)
	}
	if config.Api.Enabled && config.Statistics.Enabled && config.Api.Port == config.Statistics.Port {
		return fmt.Errorf("api and statistics cannot share port %d", config.Api.Port)
	}
	return nil
}

func isValidPort(port int) bool {
	return port > 0 && port < 65536
}

func validateController(config *ControllerConfig) error {
	if !util.IsFinite(config.P) || !util.IsFinite(config.I) || !util.IsFinite(config.D) {
		return errors.New("controller: PID constants must be finite numbers")
	}
	if config.P == 0 && config.I == 0 && config.D == 0 {
		return errors.New("controller: all PID constants are zero")
	}
	if !util.IsFinite(config.Setpoint) {
		return errors.New("controller: setpoint must be a finite number")
	}
	if config.Setpoint < 0 {
		ui.Warning("Controller setpoint %.2f is above the surface (depth is positive downwards)", config.Setpoint)
	}
	if config.TimeStep <= 0 {
		return fmt.Errorf("controller: timeStep must be > 0, got %s", config.TimeStep)
	}
	if !util.IsFinite(config.MaxThrust) || config.MaxThrust <= 0 {
		return fmt.Errorf("controller: maxThrust must be > 0, got %v", config.MaxThrust)
	}
	if _, err := pid.ParseAntiWindup(config.AntiWindup.String()); err != nil {
		return fmt.Errorf("controller: %w, use one of: %s", err, strings.Join([]string{AntiWindupNone, AntiWindupConditional}, " | "))
	}
	return nil
}

func validatePlant(config *PlantConfig) error {
	subConfigs := 0
	if config.Simulated != nil {
		subConfigs++
	}
	if config.File != nil {
		subConfigs++
	}
	if config.Cmd != nil {
		subConfigs++
	}
	if config.Mqtt != nil {
		subConfigs++
	}
	if subConfigs > 1 {
		return fmt.Errorf("plant %s: only one plant type can be used", config.ID)
	}
	if subConfigs <= 0 {
		return fmt.Errorf("plant %s: sub-configuration for plant is missing, use one of: simulated | file | cmd | mqtt", config.ID)
	}

	if config.Simulated != nil {
		if !util.IsFinite(config.Simulated.InitialDepth) {
			return fmt.Errorf("plant %s: initialDepth must be a finite number", config.ID)
		}
		if gain := config.Simulated.Gain; gain != nil && (!util.IsFinite(*gain) || *gain <= 0) {
			return fmt.Errorf("plant %s: gain must be a finite number > 0, got %v", config.ID, *gain)
		}
		if config.InvertThrust {
			return fmt.Errorf("plant %s: invertThrust has no effect on a simulated plant", config.ID)
		}
	}

	if config.File != nil {
		if len(config.File.DepthPath) <= 0 {
			return fmt.Errorf("plant %s: missing depthPath", config.ID)
		}
		if len(config.File.ThrustPath) <= 0 {
			return fmt.Errorf("plant %s: missing thrustPath", config.ID)
		}
		if config.File.DepthPath == config.File.ThrustPath {
			return fmt.Errorf("plant %s: depthPath and thrustPath must be different files", config.ID)
		}
	}

	if config.Cmd != nil {
		if config.Cmd.GetDepth == nil || len(config.Cmd.GetDepth.Exec) <= 0 {
			return fmt.Errorf("plant %s: missing getDepth command", config.ID)
		}
		if config.Cmd.ApplyThrust == nil || len(config.Cmd.ApplyThrust.Exec) <= 0 {
			return fmt.Errorf("plant %s: missing applyThrust command", config.ID)
		}
		if config.Cmd.Timeout < 0 {
			return fmt.Errorf("plant %s: timeout must be >= 0", config.ID)
		}
	}

	if config.Mqtt != nil {
		if len(config.Mqtt.Broker) <= 0 {
			return fmt.Errorf("plant %s: missing mqtt broker", config.ID)
		}
		if len(config.Mqtt.DepthTopic) <= 0 || len(config.Mqtt.ThrustTopic) <= 0 {
			return fmt.Errorf("plant %s: depthTopic and thrustTopic are required", config.ID)
		}
		if config.Mqtt.Qos > 2 {
			return fmt.Errorf("plant %s: qos must be one of 0 | 1 | 2", config.ID)
		}
	}

	return nil
}

func validateLoop(config *LoopConfig) error {
	supportedModes := []string{LoopModeRealtime, LoopModeBatch}
	if !slices.Contains(supportedModes, config.Mode.String()) {
		return fmt.Errorf("loop: unsupported mode '%s', use one of: %s", config.Mode, strings.Join(supportedModes, " | "))
	}
	if config.MaxCycles < 0 {
		return fmt.Errorf("loop: maxCycles must be >= 0, got %d", config.MaxCycles)
	}
	if config.Mode == LoopModeBatch && config.MaxCycles == 0 && !config.Settle.Enabled {
		return errors.New("loop: batch mode requires maxCycles or settle detection, otherwise a run never ends")
	}
	if config.Settle.Enabled {
		if config.Settle.Window <= 0 {
			return fmt.Errorf("loop: settle window must be > 0, got %d", config.Settle.Window)
		}
		if !util.IsFinite(config.Settle.Tolerance) || config.Settle.Tolerance <= 0 {
			return fmt.Errorf("loop: settle tolerance must be > 0, got %v", config.Settle.Tolerance)
		}
	}
	return nil
}

func validateTelemetry(config *TelemetryConfig) error {
	if config.Kafka != nil {
		if len(config.Kafka.Brokers) <= 0 {
			return errors.New("telemetry: kafka requires at least one broker")
		}
		if len(config.Kafka.Topic) <= 0 {
			return errors.New("telemetry: kafka topic is missing")
		}
	}
	if config.Mqtt != nil {
		if len(config.Mqtt.Broker) <= 0 {
			return errors.New("telemetry: mqtt broker is missing")
		}
		if len(config.Mqtt.Topic) <= 0 {
			return errors.New("telemetry: mqtt topic is missing")
		}
		if config.Mqtt.Qos > 2 {
			return errors.New("telemetry: mqtt qos must be one of 0 | 1 | 2")
		}
	}
	return nil
}
