package plants

import (
	"fmt"
	"strconv"
	"time"

	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/util"
)

const (
	defaultCmdTimeout = 2 * time.Second
)

// CmdPlant executes external commands to measure depth and apply thrust.
type CmdPlant struct {
	Config configuration.PlantConfig `json:"config"`
}

func (p *CmdPlant) GetId() string {
	return p.Config.ID
}

func (p *CmdPlant) timeout() time.Duration {
	if p.Config.Cmd.Timeout > 0 {
		return p.Config.Cmd.Timeout
	}
	return defaultCmdTimeout
}

func (p *CmdPlant) GetDepth() (float64, error) {
	conf := p.Config.Cmd.GetDepth

	result, err := util.SafeCmdExecution(conf.Exec, conf.Args, p.timeout())
	if err != nil {
		return 0, fmt.Errorf("plant %s: %w", p.GetId(), err)
	}

	depth, err := strconv.ParseFloat(result, 64)
	if err != nil {
		return 0, fmt.Errorf("plant %s: unable to parse depth from command output '%s': %w", p.GetId(), result, err)
	}
	return depth, nil
}

func (p *CmdPlant) ApplyThrust(command float64) error {
	conf := p.Config.Cmd.ApplyThrust

	value := strconv.FormatFloat(actuatorCommand(p.Config, command), 'f', -1, 64)
	args := append(append([]string{}, conf.Args...), value)

	_, err := util.SafeCmdExecution(conf.Exec, args, p.timeout())
	if err != nil {
		return fmt.Errorf("plant %s: %w", p.GetId(), err)
	}
	return nil
}
