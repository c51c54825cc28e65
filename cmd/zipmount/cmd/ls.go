package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/oneconcern/zipmount/pkg/readdir"
	"github.com/oneconcern/zipmount/pkg/vfs"
)

const timeLayout = "2006-01-02 15:04"

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory of the virtual tree",
	Long: `List a directory of the virtual tree described by a manifest, without mounting it.

Entries are fetched by pages, resuming from the cookie returned by the previous page.
Sizes are reported in human readable form with --long.
`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t0 := time.Now()
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "ls", err)
		}(t0)

		pth := "/"
		if len(args) > 0 {
			pth = args[0]
		}

		s, err := openTree(true)
		if err != nil {
			wrapFatalln("build virtual tree", err)
			return
		}
		defer func() { _ = s.Close() }()

		node, err := s.tree.Lookup(pth)
		if err != nil {
			wrapFatalln("lookup "+pth, err)
			return
		}

		var entries []readdir.Entry
		if node.Kind() != vfs.KindDir {
			var attrs vfs.Attributes
			attrs, err = node.Attributes()
			if err != nil {
				wrapFatalln("stat "+pth, err)
				return
			}
			entries = []readdir.Entry{{Name: pth, ID: node.ID(), Kind: node.Kind(), Attributes: &attrs}}
		} else {
			entries, err = listAll(readdir.New(s.tree, readdir.Logger(s.l)), node)
			if err != nil {
				wrapFatalln("list "+pth, err)
				return
			}
		}

		out := cmd.OutOrStdout()
		if !zipmountFlags.ls.Long {
			for _, entry := range entries {
				_, _ = fmt.Fprintln(out, entry.Name)
			}
			return
		}
		if err = printLong(out, s.tree, node, entries); err != nil {
			wrapFatalln("list "+pth, err)
			return
		}
	},
}

// listAll pages through a directory until the end of its entries
func listAll(engine *readdir.Engine, dir vfs.Node) ([]readdir.Entry, error) {
	pageSize := zipmountFlags.ls.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var (
		entries []readdir.Entry
		cookie  uint64
	)
	for {
		page := 0
		result, err := engine.List(dir, cookie, zipmountFlags.ls.Long, func(entry readdir.Entry) bool {
			if page == pageSize {
				return false
			}
			page++
			if !zipmountFlags.ls.All && (entry.Name == "." || entry.Name == "..") {
				return true
			}
			entries = append(entries, entry)
			return true
		})
		if err != nil {
			return nil, err
		}
		if result.EOF {
			return entries, nil
		}
		cookie = result.Cookie
	}
}

func printLong(out io.Writer, tree *vfs.Tree, dir vfs.Node, entries []readdir.Entry) error {
	table := uitable.New()
	table.MaxColWidth = 80
	for _, entry := range entries {
		attrs := entry.Attributes
		if attrs == nil {
			continue
		}
		name := entry.Name
		if entry.Kind == vfs.KindSymlink {
			target, err := readLink(tree, dir, entry)
			if err != nil {
				return err
			}
			name += " -> " + target
		}
		table.AddRow(
			attrs.Mode.String(),
			attrs.Nlink,
			attrs.Uid,
			attrs.Gid,
			units.HumanSize(float64(attrs.Size)),
			attrs.Mtime.Format(timeLayout),
			name,
		)
	}
	_, err := fmt.Fprintln(out, table)
	return err
}

func readLink(tree *vfs.Tree, dir vfs.Node, entry readdir.Entry) (string, error) {
	node := dir
	if entry.ID != dir.ID() {
		var err error
		node, err = tree.Node(entry.ID)
		if err != nil {
			return "", err
		}
	}
	return node.ReadLink()
}

func init() {
	requiredFlags := []string{addManifestFlag(lsCmd)}
	addShadowFlag(lsCmd)
	addLongFlag(lsCmd)
	addAllFlag(lsCmd)
	addPageSizeFlag(lsCmd)
	addIdleFlag(lsCmd)
	addInflateCacheFlag(lsCmd)
	requireFlags(lsCmd, requiredFlags...)

	rootCmd.AddCommand(lsCmd)
}
