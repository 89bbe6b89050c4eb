package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/calendar"
	"github.com/sells-group/panel-cli/internal/export"
	"github.com/sells-group/panel-cli/internal/ingest"
	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/panel"
)

var (
	buildOut     string
	buildReport  string
	buildProfile string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the panel from securities, reports, prices, and benchmark CSVs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("build"); err != nil {
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

		loader, err := ingest.NewCSVLoader(cfg.Ingest)
		if err != nil {
			return err
		}

		securities, err := loader.Securities(ctx)
		if err != nil {
			return err
		}
		reports, err := loader.Reports(ctx)
		if err != nil {
			return err
		}
		prices, err := loader.Prices(ctx)
		if err != nil {
			return err
		}
		benchmark, err := loader.Benchmark(ctx)
		if err != nil {
			return err
		}

		// The benchmark series defines the trading calendar: a session
		// exists exactly when the benchmark printed a bar.
		days := make([]time.Time, len(benchmark))
		for i, bar := range benchmark {
			days[i] = bar.TradeDate
		}
		cal, err := calendar.New(days)
		if err != nil {
			return err
		}
		uni, err := calendar.NewUniverse(securities)
		if err != nil {
			return err
		}

		zap.L().Info("inputs loaded",
			zap.Int("securities", len(securities)),
			zap.Int("reports", len(reports.Accepted)),
			zap.Int64("reports_rejected", reports.Rejected),
			zap.Int("price_bars", len(prices)),
			zap.Int("trading_days", cal.Len()),
		)

		panelCfg := cfg.Panel
		if buildProfile != "" {
			panelCfg, err = panel.LoadProfile(buildProfile, panelCfg)
			if err != nil {
				return err
			}
			zap.L().Info("build profile applied", zap.String("profile", buildProfile))
		}

		builder, err := panel.NewBuilder(cal, uni, panelCfg)
		if err != nil {
			return err
		}

		run, err := st.CreateRun(ctx)
		if err != nil {
			return err
		}
		builder.OnStatus = func(status model.RunStatus) {
			if err := st.UpdateRunStatus(ctx, run.ID, status); err != nil {
				zap.L().Warn("run status update failed",
					zap.String("run", run.ID),
					zap.Error(err),
				)
			}
		}

		res, err := builder.Build(ctx, panel.Inputs{
			Reports:         reports.Accepted,
			Prices:          prices,
			Benchmark:       benchmark,
			ReportsRejected: reports.Rejected,
		})
		if err != nil {
			status := model.RunStatusFailed
			if ctx.Err() != nil {
				status = model.RunStatusCancelled
			}
			_ = st.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, status)
			return eris.Wrap(err, "panel build")
		}

		if _, err := st.SaveFeatureCatalog(ctx, builder.Registry().Specs()); err != nil {
			return err
		}
		saved, err := st.SavePanel(ctx, run.ID, res.Table)
		if err != nil {
			return err
		}
		if err := st.CompleteRun(ctx, run.ID, &res.Report); err != nil {
			return err
		}

		if buildOut != "" {
			if err := export.WritePanelCSV(buildOut, res.Table); err != nil {
				return err
			}
		}
		if buildReport != "" {
			if err := export.WriteQualityYAML(buildReport, &res.Report); err != nil {
				return err
			}
		}

		zap.L().Info("build complete",
			zap.String("run", run.ID),
			zap.Int64("rows_saved", saved),
			zap.Int("features", len(res.Table.Columns)),
		)

		// Print the quality report JSON to stdout for scripting.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildOut, "out", "", "also write the panel as CSV to this path")
	buildCmd.Flags().StringVar(&buildReport, "report", "", "also write the quality report as YAML to this path")
	buildCmd.Flags().StringVar(&buildProfile, "profile", "", "YAML profile overlaying panel settings for this build")
	rootCmd.AddCommand(buildCmd)
}
