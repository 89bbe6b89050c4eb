package panel

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadProfile overlays settings from a YAML profile file onto base and
// validates the result. Keys absent from the file keep their base values,
// so a profile only needs to name what it changes.
func LoadProfile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "panel: read profile %s", path)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, eris.Wrapf(err, "panel: parse profile %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return base, eris.Wrapf(err, "panel: profile %s", path)
	}
	return cfg, nil
}
