package cmd

import (
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/oneconcern/zipmount/pkg/zipcache"
)

const (
	defaultPageSize = 256
)

type flagsT struct {
	manifest struct {
		Path string
	}
	mount struct {
		Path       string
		ReadOnly   bool
		Daemonize  bool
		AllowOther bool
	}
	shadow struct {
		Root string
	}
	cache struct {
		Idle    time.Duration
		Inflate int
	}
	ls struct {
		Long     bool
		All      bool
		PageSize int
	}
	cat struct {
		BufferSize int
	}
	root struct {
		logLevel string
		cpuProf  string
		memProf  string
		metrics  metricsFlags
	}
}

var zipmountFlags = flagsT{}

func addManifestFlag(cmd *cobra.Command) string {
	manifest := "manifest"
	cmd.Flags().StringVar(&zipmountFlags.manifest.Path, manifest, "", "The manifest describing the virtual tree (JSON or YAML)")
	return manifest
}

func addMountPathFlag(cmd *cobra.Command) string {
	mount := "mount"
	cmd.Flags().StringVar(&zipmountFlags.mount.Path, mount, "", "The directory where the virtual tree is mounted")
	return mount
}

func addReadOnlyFlag(cmd *cobra.Command) string {
	readOnly := "read-only"
	cmd.Flags().BoolVar(&zipmountFlags.mount.ReadOnly, readOnly, false, "Mount without a write overlay")
	return readOnly
}

func addDaemonizeFlag(cmd *cobra.Command) string {
	daemonize := "daemonize"
	if cmd != nil {
		cmd.Flags().BoolVar(&zipmountFlags.mount.Daemonize, daemonize, false, "Whether to run the command as a daemonized process")
	}
	return daemonize
}

func addAllowOtherFlag(cmd *cobra.Command) string {
	allowOther := "allow-other"
	cmd.Flags().BoolVar(&zipmountFlags.mount.AllowOther, allowOther, false, "Let other users access the mounted tree")
	return allowOther
}

func addShadowFlag(cmd *cobra.Command) string {
	shadow := "shadow"
	cmd.Flags().StringVar(&zipmountFlags.shadow.Root, shadow, "", "The directory holding detached copies of written archive entries")
	return shadow
}

func addIdleFlag(cmd *cobra.Command) string {
	idle := "idle"
	cmd.Flags().DurationVar(&zipmountFlags.cache.Idle, idle, zipcache.DefaultIdleTimeout, "Unload archives not accessed for that long")
	return idle
}

func addInflateCacheFlag(cmd *cobra.Command) string {
	inflate := "inflate-cache"
	cmd.Flags().IntVar(&zipmountFlags.cache.Inflate, inflate, zipcache.DefaultInflateCacheSize, "The number of inflated entries kept in memory")
	return inflate
}

func addLongFlag(cmd *cobra.Command) string {
	long := "long"
	cmd.Flags().BoolVarP(&zipmountFlags.ls.Long, long, "l", false, "List entries with their attributes")
	return long
}

func addAllFlag(cmd *cobra.Command) string {
	all := "all"
	cmd.Flags().BoolVarP(&zipmountFlags.ls.All, all, "a", false, "Include the . and .. entries")
	return all
}

func addPageSizeFlag(cmd *cobra.Command) string {
	page := "page-size"
	cmd.Flags().IntVar(&zipmountFlags.ls.PageSize, page, defaultPageSize, "The number of entries fetched by each enumeration call")
	return page
}

func addBufferSizeFlag(cmd *cobra.Command) string {
	buffer := "buffer-size"
	cmd.Flags().IntVar(&zipmountFlags.cat.BufferSize, buffer, 64*units.KiB, "The size of each read")
	return buffer
}

func addLogLevel(cmd *cobra.Command) string {
	loglevel := "loglevel"
	cmd.PersistentFlags().StringVar(&zipmountFlags.root.logLevel, loglevel, "info", "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return loglevel
}

func addCPUProfFlag(cmd *cobra.Command) string {
	cpuProf := "cpuprof"
	cmd.PersistentFlags().StringVar(&zipmountFlags.root.cpuProf, cpuProf, "", "Write a CPU profile to this file")
	return cpuProf
}

func addMemProfFlag(cmd *cobra.Command) string {
	memProf := "memprof"
	cmd.PersistentFlags().StringVar(&zipmountFlags.root.memProf, memProf, "", "Write a heap profile to this file when the command completes")
	return memProf
}

func addMetricsFlag(cmd *cobra.Command) string {
	m := "metrics"
	zipmountFlags.root.metrics.Enabled = new(bool)
	cmd.PersistentFlags().BoolVar(zipmountFlags.root.metrics.Enabled, m, false, "Toggles telemetry metrics, logged at info level")
	return m
}

// requireFlags marks flags as mandatory
func requireFlags(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			wrapFatalln("mark required flag", err)
			return
		}
	}
}
