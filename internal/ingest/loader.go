// Package ingest adapts the upstream extracts (materialized fundamentals,
// prices, and the benchmark series) into the pipeline's entities. All
// external I/O happens here, before the join phase starts.
package ingest

import (
	"context"

	"github.com/sells-group/panel-cli/internal/model"
)

// ReportSet is the outcome of loading fundamental reports: accepted
// records plus the count of rejected ones. Rejections (reports violating
// public_filing_date >= period_end_date) are logged and counted, never
// corrected. The run continues without them.
type ReportSet struct {
	Accepted []model.FundamentalReport
	Rejected int64
}

// Loader provides the pipeline's input data. Implementations must return
// fully materialized slices; no lazy I/O may leak into the compute phases.
type Loader interface {
	Securities(ctx context.Context) ([]model.Security, error)
	Reports(ctx context.Context) (*ReportSet, error)
	Prices(ctx context.Context) ([]model.PriceBar, error)
	Benchmark(ctx context.Context) ([]model.PriceBar, error)
}
