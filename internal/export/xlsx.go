package export

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/panel-cli/internal/model"
)

// WriteQualityXLSX writes the run's quality report as a three-sheet
// workbook: run summary, per-phase timings, and invalid-feature counts.
func WriteQualityXLSX(path string, run *model.Run) error {
	if run.Report == nil {
		return eris.Errorf("export: run %s has no report", run.ID)
	}
	report := run.Report

	f := xlsx.NewFile()

	summary, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addPair := func(name, value string) {
		row := summary.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetString(value)
	}
	addPair("run_id", run.ID)
	addPair("status", string(run.Status))
	addPair("created_at", run.CreatedAt.Format("2006-01-02 15:04:05"))
	addPair("securities", strconv.Itoa(report.Securities))
	addPair("trading_days", strconv.Itoa(report.TradingDays))
	addPair("reports_accepted", strconv.FormatInt(report.ReportsAccepted, 10))
	addPair("reports_rejected", strconv.FormatInt(report.ReportsRejected, 10))
	addPair("rows_joined", strconv.FormatInt(report.RowsJoined, 10))
	addPair("rows_emitted", strconv.FormatInt(report.RowsEmitted, 10))
	addPair("rows_dropped", strconv.FormatInt(report.RowsDropped, 10))
	addPair("labels_invalid", strconv.FormatInt(report.LabelsInvalid, 10))
	addPair("winsorize_skipped", strconv.FormatInt(report.WinsorizeSkipped, 10))

	phases, err := f.AddSheet("phases")
	if err != nil {
		return eris.Wrap(err, "export: add phases sheet")
	}
	head := phases.AddRow()
	for _, h := range []string{"phase", "status", "duration_ms", "error"} {
		head.AddCell().SetString(h)
	}
	for _, p := range report.Phases {
		row := phases.AddRow()
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(string(p.Status))
		row.AddCell().SetInt64(p.Duration)
		row.AddCell().SetString(p.Error)
	}

	invalid, err := f.AddSheet("invalid_features")
	if err != nil {
		return eris.Wrap(err, "export: add invalid_features sheet")
	}
	head = invalid.AddRow()
	head.AddCell().SetString("feature")
	head.AddCell().SetString("invalid_count")
	for _, name := range sortedByCount(report.InvalidFeatures) {
		row := invalid.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetInt64(report.InvalidFeatures[name])
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// sortedByCount orders feature names by descending invalid count, then by
// name so the sheet is stable across runs.
func sortedByCount(counts map[string]int64) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
