package config

import (
	"fmt"
	"os"

	"github.com/markusressel/depth2go/cmd/global"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validates the current configuration",
	Long: `Loads the configuration file, checks it for errors and
prints a summary of the controller, plant and loop settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// the config file path comes from the root command (-c)
		configPath := configuration.DetectAndReadConfigFile()
		ui.Info("Using configuration file at: %s", configPath)
		configuration.LoadConfig()

		if err := configuration.Validate(); err != nil {
			ui.Error("Validation failed: %v", err)
			os.Exit(1)
		}

		if err := printSummary(configuration.CurrentConfig); err != nil {
			return err
		}
		ui.Success("Config looks good! :)")
		return nil
	},
}

func plantType(config configuration.PlantConfig) string {
	switch {
	case config.Simulated != nil:
		return "simulated"
	case config.File != nil:
		return "file"
	case config.Cmd != nil:
		return "cmd"
	case config.Mqtt != nil:
		return "mqtt"
	}
	return "-"
}

func printSummary(config configuration.Configuration) error {
	controller := config.Controller
	maxCycles := "unlimited"
	if config.Loop.MaxCycles > 0 {
		maxCycles = fmt.Sprintf("%d", config.Loop.MaxCycles)
	}

	rows := [][]string{
		{"Plant", fmt.Sprintf("%s (%s)", config.Plant.ID, plantType(config.Plant))},
		{"Gains", fmt.Sprintf("p=%v i=%v d=%v", controller.P, controller.I, controller.D)},
		{"Setpoint", fmt.Sprintf("%.2f m", controller.Setpoint)},
		{"Time Step", controller.TimeStep.String()},
		{"Max Thrust", fmt.Sprintf("%.2f", controller.MaxThrust)},
		{"Anti-Windup", controller.AntiWindup.String()},
		{"Loop", fmt.Sprintf("%s, max cycles: %s", config.Loop.Mode, maxCycles)},
	}
	text, err := ui.RenderTable([]string{"Setting", "Value"}, rows, !global.NoColor)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

func init() {
	Command.AddCommand(validateCmd)
}
