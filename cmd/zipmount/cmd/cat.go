package cmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/oneconcern/zipmount/pkg/vfs"
)

var catCmd = &cobra.Command{
	Use:   "cat path...",
	Short: "Print files of the virtual tree",
	Long: `Print the content of files of the virtual tree described by a manifest, without mounting it.

Archive entries stored with deflate are inflated on the fly. Symbolic links are not followed.
`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t0 := time.Now()
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "cat", err)
		}(t0)

		s, err := openTree(true)
		if err != nil {
			wrapFatalln("build virtual tree", err)
			return
		}
		defer func() { _ = s.Close() }()

		out := cmd.OutOrStdout()
		for _, pth := range args {
			var node vfs.Node
			node, err = s.tree.Lookup(pth)
			if err != nil {
				wrapFatalln("lookup "+pth, err)
				return
			}
			if err = copyNode(out, node, zipmountFlags.cat.BufferSize); err != nil {
				wrapFatalln("read "+pth, err)
				return
			}
		}
	},
}

// copyNode writes the content of a file node to w
func copyNode(w io.Writer, node vfs.Node, bufferSize int) error {
	if bufferSize <= 0 {
		bufferSize = 32 * 1024
	}
	buf := make([]byte, bufferSize)
	var off int64
	for {
		n, err := node.ReadAt(buf, off)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			off += int64(n)
		}
		if err == io.EOF || (err == nil && n == 0) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func init() {
	requiredFlags := []string{addManifestFlag(catCmd)}
	addShadowFlag(catCmd)
	addBufferSizeFlag(catCmd)
	addIdleFlag(catCmd)
	addInflateCacheFlag(catCmd)
	requireFlags(catCmd, requiredFlags...)

	rootCmd.AddCommand(catCmd)
}
