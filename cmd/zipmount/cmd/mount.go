package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	daemonizer "github.com/jacobsa/daemonize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oneconcern/zipmount/pkg/fuse"
)

func undaemonizeArgs(args []string) []string {
	foregroundArgs := make([]string, 0, len(args))
	for _, arg := range args {
		if arg != "--"+addDaemonizeFlag(nil) {
			foregroundArgs = append(foregroundArgs, arg)
		}
	}
	return foregroundArgs
}

// daemonEnv passes along PATH, so that the daemon can find fusermount on Linux, and the zipmount settings
func daemonEnv() []string {
	env := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("HOME=%s", os.Getenv("HOME")),
	}
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "ZIPMOUNT_") {
			env = append(env, kv)
		}
	}
	return env
}

/**
 * call this function followed by return at any point in a Run: func in order to run the command as a pseudo-daemonized process.
 *
 * Go doesn't fork() because of the runtime. The same binary is exec()ed again in the foreground, and reports
 * through a pipe whether it started successfully, without the caller blocking on its exit code.
 *
 * `daemonizer.SignalOutcome(nil)` is called in Run() once the mount is ready.
 */
func runDaemonized() {
	path, err := os.Executable()
	if err != nil {
		wrapFatalln("os.Executable", err)
		return
	}

	if err = daemonizer.Run(path, undaemonizeArgs(os.Args[1:]), daemonEnv(), os.Stdout); err != nil {
		wrapFatalln("daemonize.Run", err)
		return
	}
}

/**
 * in between runDaemonized() and SignalOutcome(), call this function instead of logFatalln() or similar
 * in case of errors
 */
func onDaemonError(msg string, err error) {
	err = fmt.Errorf(msg+": %w", err)
	if errSig := daemonizer.SignalOutcome(err); errSig != nil {
		logFatalln(fmt.Errorf("error SignalOutcome: %v, cause: %v", errSig, err))
		return
	}
	logFatalln(err)
}

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount a manifest",
	Long: `Mount the virtual tree described by a manifest.

Archive entries are read straight from the zip archives named in the manifest.

When a shadow directory is configured, writes to archive entries are redirected to copies in that directory,
and survive across mounts. With --read-only, or without a shadow directory, the tree cannot be modified.

The mount is released on SIGINT.
`,
	Run: func(cmd *cobra.Command, args []string) {
		// cf. comments on runDaemonized
		if zipmountFlags.mount.Daemonize {
			runDaemonized()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := openTree(!zipmountFlags.mount.ReadOnly)
		if err != nil {
			onDaemonError("build virtual tree", err)
			return
		}
		defer func() {
			if err := s.Close(); err != nil {
				s.l.Warn("releasing archives", zap.Error(err))
			}
		}()

		fs, err := fuse.New(s.tree, fuse.Logger(s.l), fuse.WithMetrics(zipmountFlags.root.metrics.IsEnabled()))
		if err != nil {
			onDaemonError("prepare filesystem", err)
			return
		}

		var mountOpts []fuse.MountOption
		if zipmountFlags.mount.AllowOther {
			mountOpts = append(mountOpts, fuse.AllowOther())
		}
		if err = fs.Mount(zipmountFlags.mount.Path, mountOpts...); err != nil {
			onDaemonError("mount", err)
			return
		}

		go s.cache.Run(ctx, zipmountFlags.cache.Idle/2)

		registerSIGINTHandlerMount(zipmountFlags.mount.Path)
		if err = daemonizer.SignalOutcome(nil); err != nil {
			wrapFatalln("signal outcome", err)
			return
		}
		s.l.Info("mounted",
			zap.String("manifest", zipmountFlags.manifest.Path),
			zap.String("mount", zipmountFlags.mount.Path),
			zap.Bool("read-only", s.tree.ReadOnly()),
		)
		if err = fs.JoinMount(ctx); err != nil {
			wrapFatalln("waiting for unmount", err)
			return
		}
	},
}

func init() {
	requiredFlags := []string{
		addManifestFlag(mountCmd),
		addMountPathFlag(mountCmd),
	}
	addShadowFlag(mountCmd)
	addReadOnlyFlag(mountCmd)
	addDaemonizeFlag(mountCmd)
	addAllowOtherFlag(mountCmd)
	addIdleFlag(mountCmd)
	addInflateCacheFlag(mountCmd)
	requireFlags(mountCmd, requiredFlags...)

	rootCmd.AddCommand(mountCmd)
}
