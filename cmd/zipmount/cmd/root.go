package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oneconcern/zipmount/internal/prof"
	"github.com/oneconcern/zipmount/pkg/zipcache"
)

const envConfigLocation = "ZIPMOUNT_CONFIG"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zipmount",
	Short: "Zipmount exposes a dependency tree backed by zip archives",
	Long: `Zipmount exposes a dependency tree as a virtual filesystem.

The tree is described by a manifest of directories, symbolic links and zip mount points.
Files under a zip mount point are served straight from the entries of a cached archive,
without extracting anything on disk.

Writes to archive entries are redirected to shadow copies, unless the tree is mounted read-only.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if zipmountFlags.root.cpuProf != "" {
			stop, err := prof.StartCPU(zipmountFlags.root.cpuProf)
			if err != nil {
				wrapFatalln("start cpu profile", err)
				return
			}
			stopCPUProf = stop
		}
		initMetrics()
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopCPUProf != nil {
			stopCPUProf()
			stopCPUProf = nil
		}
		if zipmountFlags.root.memProf != "" {
			if err := prof.WriteHeap(zipmountFlags.root.memProf); err != nil {
				log.Println("could not write heap profile:", err)
			}
		}
	},
}

var (
	config      *CLIConfig
	stopCPUProf func()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addLogLevel(rootCmd)
	addCPUProfFlag(rootCmd)
	addMemProfFlag(rootCmd)
	addMetricsFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("shadow", "")
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("idle", zipcache.DefaultIdleTimeout)
	viper.SetDefault("inflateCache", zipcache.DefaultInflateCacheSize)
	viper.SetDefault("metrics", false)

	if os.Getenv(envConfigLocation) != "" {
		// Use config file from the environment.
		viper.SetConfigFile(os.Getenv(envConfigLocation))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.zipmount")
		viper.SetConfigName("zipmount")
	}

	viper.SetEnvPrefix("zipmount")
	viper.AutomaticEnv() // read in environment variables that match
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	var err error
	config, err = newConfig()
	if err != nil {
		wrapFatalln("read configuration", err)
		return
	}
	config.setParams(rootCmd, &zipmountFlags)
}
