package cmd

import (
	"fmt"
	"os"

	"github.com/markusressel/depth2go/cmd/config"
	"github.com/markusressel/depth2go/cmd/global"
	"github.com/markusressel/depth2go/cmd/run"
	"github.com/markusressel/depth2go/internal"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "depth2go",
	Short: "A daemon to keep a remotely operated vehicle at a target depth.",
	Long: `depth2go is a simple daemon that keeps an underwater vehicle
at a target depth, using a PID controller driving its vertical thruster.`,
	// this is the default command to run when no subcommand is specified
	Run: func(cmd *cobra.Command, args []string) {
		setupUi()
		printHeader()

		configPath := configuration.DetectAndReadConfigFile()
		ui.Info("Using configuration file at: %s", configPath)
		configuration.LoadConfig()
		err := configuration.Validate()
		if err != nil {
			ui.ErrorAndNotify("Config Validation Error", err.Error())
			return
		}

		if noAutoStart, _ := cmd.Flags().GetBool("no-autostart"); noAutoStart {
			configuration.CurrentConfig.Loop.AutoStart = false
		}

		internal.RunDaemon()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&global.CfgFile, "config", "c", "", "config file (default is $HOME/depth2go.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&global.NoColor, "no-color", "", false, "Disable all terminal output coloration")
	rootCmd.PersistentFlags().BoolVarP(&global.NoStyle, "no-style", "", false, "Disable all terminal output styling")
	rootCmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "More verbose output")

	rootCmd.Flags().Float64P("setpoint", "s", 0, "Target depth in meters, overrides controller.setpoint")
	rootCmd.Flags().Bool("no-autostart", false, "Wait for an operator to start depth control via the API")
	rootCmd.Flags().Bool("api", false, "Enable the operator API, overrides api.enabled")
	bindFlag("controller.setpoint", "setpoint")
	bindFlag("api.enabled", "api")

	rootCmd.AddCommand(config.Command)
	rootCmd.AddCommand(run.Command)
}

func bindFlag(key string, flag string) {
	if err := viper.BindPFlag(key, rootCmd.Flags().Lookup(flag)); err != nil {
		ui.Fatal("Unable to bind flag %s: %v", flag, err)
	}
}

func setupUi() {
	ui.SetDebugEnabled(global.Verbose)

	if global.NoColor {
		pterm.DisableColor()
	}
	if global.NoStyle {
		pterm.DisableStyling()
	}
}

// Print a large text with the LetterStyle from the standard theme.
func printHeader() {
	err := pterm.DefaultBigText.WithLetters(
		pterm.NewLettersFromStringWithStyle("depth", pterm.NewStyle(pterm.FgLightBlue)),
		pterm.NewLettersFromStringWithStyle("2", pterm.NewStyle(pterm.FgWhite)),
		pterm.NewLettersFromStringWithStyle("go", pterm.NewStyle(pterm.FgLightBlue)),
	).Render()
	if err != nil {
		fmt.Println("depth2go")
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.OnInitialize(func() {
		configuration.InitConfig(global.CfgFile)
		setupUi()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
