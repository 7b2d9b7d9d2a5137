package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markusressel/depth2go/cmd/global"
	"github.com/markusressel/depth2go/cmd/run"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/control_loop"
	"github.com/markusressel/depth2go/internal/plants"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/session"
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/markusressel/depth2go/internal/util"
	"github.com/spf13/cobra"
)

const simulatedPlantId = "simulation"

var (
	simSetpoint     float64
	simCycles       int
	simRealtime     bool
	simInitialDepth float64
	simGain         float64
	simP            float64
	simI            float64
	simD            float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the depth controller against a simulated vehicle",
	Long: `Runs the configured PID controller against a simulated vehicle
and prints the depth and thrust of every cycle, followed by a plot of the run.

The configuration file is optional, defaults are used if none is found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath, ok := configuration.ReadConfigFileIfPresent(); ok {
			ui.Info("Using configuration file at: %s", configPath)
		}
		configuration.LoadConfig()

		controllerConfig := configuration.CurrentConfig.Controller
		flags := cmd.Flags()
		if flags.Changed("kp") {
			controllerConfig.P = simP
		}
		if flags.Changed("ki") {
			controllerConfig.I = simI
		}
		if flags.Changed("kd") {
			controllerConfig.D = simD
		}
		setpoint := controllerConfig.Setpoint
		if flags.Changed("setpoint") {
			setpoint = simSetpoint
		}

		controller, err := session.NewController(controllerConfig, setpoint)
		if err != nil {
			return err
		}
		plant := plants.NewSimulatedPlant(simulatedPlantId, simInitialDepth, simGain)

		options := session.LoopOptions(configuration.CurrentConfig.Loop)
		if err := validateSimulation(simCycles, simGain, options.Settle); err != nil {
			return err
		}
		options.MaxCycles = simCycles
		options.Mode = control_loop.ModeBatch
		if simRealtime {
			options.Mode = control_loop.ModeRealtime
		}

		history := samples.NewHistory()
		printer := samples.SinkFunc(func(sample samples.Sample) error {
			ui.Printfln("Depth: %.2f m, Thrust: %.2f", sample.Measurement, sample.Command)
			return nil
		})
		loop := control_loop.NewLoop(controller, plant, options, history, printer)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runErr := loop.Run(ctx)
		history.Close()
		if runErr != nil {
			ui.Error("Simulation failed: %v", runErr)
		}

		if err = printSummary(loop.Status()); err != nil {
			return err
		}
		run.PrintSamples(history.Snapshot())
		return runErr
	},
}

// validateSimulation rejects simulations that would never end or never move
func validateSimulation(cycles int, gain float64, settle *control_loop.SettleOptions) error {
	if !util.IsFinite(gain) || gain <= 0 {
		return fmt.Errorf("gain must be a finite number > 0, got %v", gain)
	}
	if cycles < 0 {
		return fmt.Errorf("cycles must be >= 0, got %d", cycles)
	}
	if cycles == 0 && (settle == nil || settle.Window <= 0) {
		return errors.New("cycles must be > 0 unless settle detection is enabled, otherwise the simulation never ends")
	}
	return nil
}

func printSummary(status control_loop.Status) error {
	headers := []string{"Setpoint", "Final Depth", "Error", "Cycles", "Saturated", "Reason"}
	rows := [][]string{
		{
			fmt.Sprintf("%.2f m", status.Setpoint),
			fmt.Sprintf("%.2f m", status.Measurement),
			fmt.Sprintf("%.3f m", status.LastResult.Error),
			fmt.Sprintf("%d", status.Cycles),
			fmt.Sprintf("%d", status.SaturatedCycles),
			string(status.Reason),
		},
	}
	text, err := ui.RenderTable(headers, rows, !global.NoColor)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Print(text)
	return nil
}

func init() {
	simulateCmd.Flags().Float64VarP(&simSetpoint, "setpoint", "s", 10, "Target depth in meters (defaults to the configured setpoint)")
	simulateCmd.Flags().IntVarP(&simCycles, "cycles", "n", 100, "Number of control cycles to simulate, 0 runs until the depth has settled")
	simulateCmd.Flags().BoolVarP(&simRealtime, "realtime", "r", false, "Wait for the configured time step between cycles")
	simulateCmd.Flags().Float64VarP(&simInitialDepth, "initial-depth", "i", 0, "Depth of the vehicle at the start of the simulation")
	simulateCmd.Flags().Float64VarP(&simGain, "gain", "g", plants.DefaultSimulationGain, "Depth change per unit of thrust and cycle")
	simulateCmd.Flags().Float64Var(&simP, "kp", 0, "Proportional gain (defaults to the configured value)")
	simulateCmd.Flags().Float64Var(&simI, "ki", 0, "Integral gain (defaults to the configured value)")
	simulateCmd.Flags().Float64Var(&simD, "kd", 0, "Derivative gain (defaults to the configured value)")

	rootCmd.AddCommand(simulateCmd)
}
