// Package export writes build artifacts for downstream consumers: the
// panel as CSV for training jobs and the quality report as a workbook
// for review.
package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/panel"
)

// keyColumns lead every panel CSV, followed by the feature columns in
// registry order and the label block.
var keyColumns = []string{"security_id", "as_of_date"}

var labelColumns = []string{"label", "label_up", "benchmark_return"}

// WritePanelCSV writes the table to path. Invalid feature cells are
// written empty, mirroring the ingest convention that an empty cell means
// missing rather than zero.
func WritePanelCSV(path string, table *panel.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := make([]string, 0, len(keyColumns)+len(table.Columns)+len(labelColumns))
	header = append(header, keyColumns...)
	header = append(header, table.Columns...)
	header = append(header, labelColumns...)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	record := make([]string, len(header))
	for _, row := range table.Rows {
		record[0] = row.SecurityID
		record[1] = row.AsOfDate.Format("2006-01-02")
		for i, v := range row.Features {
			if v.Valid {
				record[2+i] = strconv.FormatFloat(v.Float, 'g', -1, 64)
			} else {
				record[2+i] = ""
			}
		}
		base := 2 + len(row.Features)
		record[base] = strconv.FormatFloat(row.Label, 'g', -1, 64)
		record[base+1] = strconv.FormatBool(row.LabelUp)
		record[base+2] = strconv.FormatFloat(row.BenchmarkReturn, 'g', -1, 64)

		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush")
	}

	zap.L().Info("panel exported",
		zap.String("path", path),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(header)),
	)
	return nil
}
