package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/oneconcern/zipmount/pkg/vfs"
)

// nodeStat is the printed form of the attributes of a node
type nodeStat struct {
	Path      string `yaml:"path"`
	Kind      string `yaml:"kind"`
	ID        string `yaml:"id"`
	Parent    string `yaml:"parent"`
	Mode      string `yaml:"mode"`
	Size      uint64 `yaml:"size"`
	AllocSize uint64 `yaml:"allocSize"`
	Nlink     uint32 `yaml:"nlink"`
	UID       uint32 `yaml:"uid"`
	GID       uint32 `yaml:"gid"`
	Mtime     string `yaml:"mtime"`
	Target    string `yaml:"target,omitempty"`
}

func statNode(pth string, node vfs.Node) (nodeStat, error) {
	attrs, err := node.Attributes()
	if err != nil {
		return nodeStat{}, err
	}
	st := nodeStat{
		Path:      pth,
		Kind:      attrs.Kind.String(),
		ID:        attrs.ID.String(),
		Parent:    attrs.Parent.String(),
		Mode:      attrs.Mode.String(),
		Size:      attrs.Size,
		AllocSize: attrs.AllocSize,
		Nlink:     attrs.Nlink,
		UID:       attrs.Uid,
		GID:       attrs.Gid,
		Mtime:     attrs.Mtime.UTC().Format(time.RFC3339),
	}
	if attrs.Kind == vfs.KindSymlink {
		if st.Target, err = node.ReadLink(); err != nil {
			return nodeStat{}, err
		}
	}
	return st, nil
}

var statCmd = &cobra.Command{
	Use:   "stat path",
	Short: "Print the attributes of a node of the virtual tree",
	Long: `Print the attributes of a node of the virtual tree described by a manifest, as YAML.

The reported id is the identity of the node, from which the mounted filesystem derives inode numbers.
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t0 := time.Now()
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "stat", err)
		}(t0)

		s, err := openTree(true)
		if err != nil {
			wrapFatalln("build virtual tree", err)
			return
		}
		defer func() { _ = s.Close() }()

		node, err := s.tree.Lookup(args[0])
		if err != nil {
			wrapFatalln("lookup "+args[0], err)
			return
		}
		st, err := statNode(args[0], node)
		if err != nil {
			wrapFatalln("stat "+args[0], err)
			return
		}
		o, err := yaml.Marshal(st)
		if err != nil {
			wrapFatalln("serialize attributes to yaml", err)
			return
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), string(o))
	},
}

func init() {
	requiredFlags := []string{addManifestFlag(statCmd)}
	addShadowFlag(statCmd)
	addIdleFlag(statCmd)
	addInflateCacheFlag(statCmd)
	requireFlags(statCmd, requiredFlags...)

	rootCmd.AddCommand(statCmd)
}
