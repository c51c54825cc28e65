package cmd

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/oneconcern/zipmount/pkg/dlogger"
	"github.com/oneconcern/zipmount/pkg/manifest"
	"github.com/oneconcern/zipmount/pkg/overlay"
	"github.com/oneconcern/zipmount/pkg/vfs"
	"github.com/oneconcern/zipmount/pkg/zipcache"
)

// appFs is the filesystem holding manifests, archives and shadow files
var appFs = afero.NewOsFs()

// session holds the virtual tree built for one command
type session struct {
	cache *zipcache.Cache
	tree  *vfs.Tree
	l     *zap.Logger
}

func getLogger() (*zap.Logger, error) {
	return dlogger.GetLogger(zipmountFlags.root.logLevel)
}

// openTree decodes the manifest and builds its virtual tree.
//
// Archive entries are writable when a shadow root is configured and writable is true.
func openTree(writable bool) (*session, error) {
	logger, err := getLogger()
	if err != nil {
		return nil, err
	}

	root, err := manifest.Load(appFs, zipmountFlags.manifest.Path)
	if err != nil {
		return nil, err
	}

	cache := zipcache.New(
		zipcache.Fs(appFs),
		zipcache.Logger(logger),
		zipcache.IdleTimeout(zipmountFlags.cache.Idle),
		zipcache.InflateCacheSize(zipmountFlags.cache.Inflate),
		zipcache.WithMetrics(zipmountFlags.root.metrics.IsEnabled()),
	)

	opts := []vfs.Option{vfs.Logger(logger)}
	if writable && zipmountFlags.shadow.Root != "" {
		opts = append(opts, vfs.WithOverlay(overlay.New(appFs, zipmountFlags.shadow.Root, overlay.Logger(logger))))
	}

	tree, err := vfs.New(root, cache, opts...)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	return &session{cache: cache, tree: tree, l: logger}, nil
}

// Close releases archives acquired by the tree
func (s *session) Close() error {
	s.tree.Release()
	return s.cache.Close()
}
