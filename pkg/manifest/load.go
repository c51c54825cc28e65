package manifest

import (
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/oneconcern/zipmount/pkg/manifest/status"
)

// Load a manifest file. Files with a .yaml or .yml extension are decoded as YAML.
func Load(fs afero.Fs, pth string) (*Node, error) {
	data, err := afero.ReadFile(fs, pth)
	if err != nil {
		return nil, status.ErrRead.WrapMessage("%q", pth).Wrap(err)
	}

	switch strings.ToLower(filepath.Ext(pth)) {
	case ".yaml", ".yml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return nil, status.Manifest(status.ErrSyntax.WrapMessage("%q", pth).Wrap(err))
		}
	}

	return Decode(data)
}
