package export

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/panel-cli/internal/model"
)

// WriteQualityYAML writes the quality report to path as YAML. Unlike the
// workbook this is meant for diffing and scripted gating, so the output
// carries only the report itself.
func WriteQualityYAML(path string, report *model.QualityReport) error {
	if report == nil {
		return eris.New("export: nil quality report")
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "export: marshal quality report")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
