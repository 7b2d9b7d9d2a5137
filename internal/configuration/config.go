package configuration

import (
	"os"
	"time"

	"github.com/markusressel/depth2go/internal/ui"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

type Configuration struct {
	DbPath string `json:"dbPath"`

	Controller ControllerConfig `json:"controller"`
	Plant      PlantConfig      `json:"plant"`
	Loop       LoopConfig       `json:"loop"`

	Telemetry  TelemetryConfig  `json:"telemetry"`
	Api        ApiConfig        `json:"api"`
	Statistics StatisticsConfig `json:"statistics"`
}

var CurrentConfig Configuration

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	viper.SetConfigName("depth2go")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			ui.Error("Couldn't detect home directory: %v", err)
			os.Exit(1)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.AddConfigPath("/etc/depth2go/")
	}

	viper.SetEnvPrefix("depth2go")
	viper.AutomaticEnv() // read in environment variables that match

	setDefaultValues()
}

func setDefaultValues() {
	viper.SetDefault("dbPath", "/var/lib/depth2go/depth2go.db")

	viper.SetDefault("controller.p", 1.2)
	viper.SetDefault("controller.i", 0.1)
	viper.SetDefault("controller.d", 0.5)
	viper.SetDefault("controller.setpoint", 10.0)
	viper.SetDefault("controller.timeStep", 100*time.Millisecond)
	viper.SetDefault("controller.maxThrust", 10.0)
	viper.SetDefault("controller.antiWindup", AntiWindupNone)

	viper.SetDefault("loop.mode", LoopModeRealtime)
	viper.SetDefault("loop.maxCycles", 0)
	viper.SetDefault("loop.autoStart", true)
	viper.SetDefault("loop.settle.enabled", false)
	viper.SetDefault("loop.settle.window", 20)
	viper.SetDefault("loop.settle.tolerance", 0.05)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.host", "localhost")
	viper.SetDefault("api.port", 9001)

	viper.SetDefault("statistics.enabled", false)
	viper.SetDefault("statistics.port", 9000)
}

// DetectAndReadConfigFile reads the config file, a missing config file is fatal.
// Returns the path of the config file in use.
func DetectAndReadConfigFile() string {
	if err := viper.ReadInConfig(); err != nil {
		// config file is required, so we fail here
		ui.Fatal("Error reading config file, %s", err)
	}
	// this is only populated _after_ ReadInConfig()
	return viper.ConfigFileUsed()
}

// ReadConfigFileIfPresent reads the config file if one can be found.
// Returns the path of the config file and whether it was read,
// default values are used otherwise.
func ReadConfigFileIfPresent() (string, bool) {
	if err := viper.ReadInConfig(); err != nil {
		ui.Debug("No config file loaded, using defaults: %v", err)
		return "", false
	}
	return viper.ConfigFileUsed(), true
}

func LoadConfig() {
	err := viper.Unmarshal(&CurrentConfig, viper.DecodeHook(decodeHook()))
	if err != nil {
		ui.Fatal("unable to decode into struct, %v", err)
	}
}
