package cmd

import (
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var configCreate = &cobra.Command{
	Use:   "create",
	Short: "Create a config",
	Long:  "Create a config to use for zipmount. Config file will be placed in $HOME/.zipmount/zipmount.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		user, err := user.Current()
		if user == nil || err != nil {
			wrapFatalln("Could not get home directory for user", nil)
			return
		}
		config := CLIConfig{
			Shadow:       zipmountFlags.shadow.Root,
			LogLevel:     zipmountFlags.root.logLevel,
			Idle:         zipmountFlags.cache.Idle,
			InflateCache: zipmountFlags.cache.Inflate,
			Metrics:      zipmountFlags.root.metrics.IsEnabled(),
		}
		o, e := yaml.Marshal(config)
		if e != nil {
			wrapFatalln("serialize config to yaml", e)
			return
		}
		_ = os.Mkdir(filepath.Join(user.HomeDir, ".zipmount"), 0777)
		err = ioutil.WriteFile(filepath.Join(user.HomeDir, ".zipmount", "zipmount.yaml"), o, 0666)
		if err != nil {
			wrapFatalln("write config file", err)
			return
		}
	},
}

func init() {
	addShadowFlag(configCreate)
	addIdleFlag(configCreate)
	addInflateCacheFlag(configCreate)

	configCmd.AddCommand(configCreate)
}
