package plants

import (
	"fmt"

	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/util"
)

// FilePlant reads the depth from and writes thrust commands to plain text files,
// e.g. provided by a kernel driver or a bridge process.
type FilePlant struct {
	Config configuration.PlantConfig `json:"config"`
}

func (p *FilePlant) GetId() string {
	return p.Config.ID
}

func (p *FilePlant) GetDepth() (float64, error) {
	filePath, err := util.ExpandHomeDir(p.Config.File.DepthPath)
	if err != nil {
		return 0, err
	}

	depth, err := util.ReadFloatFromFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("plant %s: unable to read depth from %s: %w", p.GetId(), filePath, err)
	}
	return depth, nil
}

func (p *FilePlant) ApplyThrust(command float64) error {
	filePath, err := util.ExpandHomeDir(p.Config.File.ThrustPath)
	if err != nil {
		return err
	}

	err = util.WriteFloatToFileAtomic(actuatorCommand(p.Config, command), filePath)
	if err != nil {
		return fmt.Errorf("plant %s: unable to write thrust to %s: %w", p.GetId(), filePath, err)
	}
	return nil
}
