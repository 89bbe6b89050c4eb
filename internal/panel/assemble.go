package panel

import (
	"sort"

	"github.com/sells-group/panel-cli/internal/model"
)

// assemble flattens per-security feature vectors and labels into the final
// table, applying the missing-data policy and filling the quality report.
// Rows with invalid labels are always dropped; invalid feature entries are
// handled per the configured imputation mode.
func (b *Builder) assemble(vectors [][]model.FeatureVector, labels [][]model.Label, report *model.QualityReport) *Table {
	columns := b.reg.Columns()
	invalidByName := make(map[string]int64)

	var rows []Row
	for i := range vectors {
		for j := range vectors[i] {
			vec := vectors[i][j]
			lbl := labels[i][j]

			nInvalid := 0
			values := make([]model.Value, len(columns))
			for k, name := range columns {
				v := vec.Values[name]
				if !v.Valid {
					nInvalid++
					invalidByName[name]++
					if b.cfg.Imputation == ImputationNeutral {
						v = model.Valid(b.cfg.NeutralValue)
					}
				}
				values[k] = v
			}

			if !lbl.Valid {
				report.LabelsInvalid++
				report.RowsDropped++
				continue
			}
			if b.cfg.Imputation == ImputationDropRow && nInvalid > 0 {
				report.RowsDropped++
				continue
			}

			rows = append(rows, Row{
				SecurityID:      vec.SecurityID,
				AsOfDate:        vec.AsOfDate,
				Features:        values,
				Label:           lbl.Excess,
				LabelUp:         lbl.Up,
				BenchmarkReturn: lbl.BenchmarkReturn,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].AsOfDate.Equal(rows[j].AsOfDate) {
			return rows[i].AsOfDate.Before(rows[j].AsOfDate)
		}
		return rows[i].SecurityID < rows[j].SecurityID
	})

	report.RowsEmitted = int64(len(rows))
	report.InvalidFeatures = invalidByName
	return &Table{Columns: columns, Rows: rows}
}
