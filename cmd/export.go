package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/export"
	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/store"
)

var (
	exportRunID       string
	exportPanelPath   string
	exportQualityPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a saved panel as CSV and its quality report as XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		runID := exportRunID
		if runID == "" {
			latest, err := st.ListRuns(ctx, store.RunFilter{
				Status: model.RunStatusComplete,
				Limit:  1,
			})
			if err != nil {
				return eris.Wrap(err, "find latest run")
			}
			if len(latest) == 0 {
				return eris.New("no complete runs to export")
			}
			runID = latest[0].ID
		}

		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		panelPath := exportPanelPath
		if panelPath == "" {
			panelPath = cfg.Export.PanelPath
		}
		qualityPath := exportQualityPath
		if qualityPath == "" {
			qualityPath = cfg.Export.QualityPath
		}

		table, err := st.LoadPanel(ctx, runID)
		if err != nil {
			return err
		}
		if err := export.WritePanelCSV(panelPath, table); err != nil {
			return err
		}

		if run.Report != nil {
			if err := export.WriteQualityXLSX(qualityPath, run); err != nil {
				return err
			}
		} else {
			zap.L().Warn("run has no quality report, skipping workbook",
				zap.String("run", runID),
			)
		}

		zap.L().Info("export complete",
			zap.String("run", runID),
			zap.String("panel", panelPath),
			zap.String("quality", qualityPath),
			zap.Int("rows", len(table.Rows)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run ID to export (default: latest complete run)")
	exportCmd.Flags().StringVar(&exportPanelPath, "panel", "", "panel CSV output path (default from config)")
	exportCmd.Flags().StringVar(&exportQualityPath, "quality", "", "quality XLSX output path (default from config)")
	rootCmd.AddCommand(exportCmd)
}
