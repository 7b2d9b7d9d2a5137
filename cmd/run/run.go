package run

import (
	"fmt"

	"github.com/markusressel/depth2go/cmd/global"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/persistence"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/markusressel/depth2go/internal/util"
	"github.com/spf13/cobra"
)

var Command = &cobra.Command{
	Use:              "run",
	Short:            "Inspect recorded runs",
	TraverseChildren: true,
}

func openPersistence() (persistence.Persistence, error) {
	configPath := configuration.DetectAndReadConfigFile()
	ui.Debug("Using configuration file at: %s", configPath)
	configuration.LoadConfig()

	p := persistence.NewPersistence(configuration.CurrentConfig.DbPath)
	return p, p.Init()
}

// PrintSamples prints the depth and thrust plots of the given samples
func PrintSamples(items []samples.Sample) {
	if len(items) <= 0 {
		ui.Warning("No samples recorded")
		return
	}

	depth := make([]float64, len(items))
	target := make([]float64, len(items))
	thrust := make([]float64, len(items))
	for i, sample := range items {
		depth[i] = sample.Measurement
		target[i] = sample.Setpoint
		thrust[i] = sample.Command
	}

	ui.Info("Depth min: %.2f m, avg: %.2f m, max: %.2f m", util.Min(depth), util.Avg(depth), util.Max(depth))
	ui.Info("Thrust min: %.2f, avg: %.2f, max: %.2f", util.Min(thrust), util.Avg(thrust), util.Max(thrust))

	fmt.Println()
	fmt.Println(ui.RenderDepthPlot(depth, target))
	fmt.Println()
	fmt.Println(ui.RenderThrustPlot(thrust))
	fmt.Println()
}

func printTable(headers []string, rows [][]string) error {
	text, err := ui.RenderTable(headers, rows, !global.NoColor)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}
