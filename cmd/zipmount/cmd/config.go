package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oneconcern/zipmount/pkg/zipcache"
)

// CLIConfig describes the CLI configuration.
type CLIConfig struct {
	// bug in viper? Need to keep names of fields the same as the serialized names..
	Shadow       string        `json:"shadow" yaml:"shadow"`             // Root of the write overlay
	LogLevel     string        `json:"loglevel" yaml:"loglevel"`         // Logging level
	Idle         time.Duration `json:"idle" yaml:"idle"`                 // Unload archives idle for that long
	InflateCache int           `json:"inflateCache" yaml:"inflateCache"` // Number of inflated entries kept in memory
	Metrics      bool          `json:"metrics" yaml:"metrics"`           // Toggles metrics
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// setParams fills in the flags that were not set on the command line
func (c *CLIConfig) setParams(root *cobra.Command, flags *flagsT) {
	if flags.shadow.Root == "" {
		flags.shadow.Root = c.Shadow
	}
	if !root.PersistentFlags().Changed("loglevel") && c.LogLevel != "" {
		flags.root.logLevel = c.LogLevel
	}
	if flags.cache.Idle == 0 || flags.cache.Idle == zipcache.DefaultIdleTimeout {
		flags.cache.Idle = c.Idle
	}
	if flags.cache.Inflate == 0 || flags.cache.Inflate == zipcache.DefaultInflateCacheSize {
		flags.cache.Inflate = c.InflateCache
	}
	if c.Metrics && flags.root.metrics.Enabled != nil {
		*flags.root.metrics.Enabled = true
	}
}

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage a config",
	Long: `Commands to manage zipmount CLI config.

Configuration for zipmount is the common set of flags that are needed for most commands and do not change across runs.

The config file is searched for in the current directory, then in $HOME/.zipmount.
The ZIPMOUNT_CONFIG environment variable points to an explicit config file.
Every key may be overridden by an environment variable, e.g. ZIPMOUNT_SHADOW.
`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
