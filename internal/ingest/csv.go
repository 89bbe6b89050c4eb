package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/panel-cli/internal/model"
)

// CSVConfig points at the four input files produced by the ingestion
// collaborator. Encoding names any charset from the WHATWG registry
// ("windows-1252", "iso-8859-1", ...); empty means UTF-8.
type CSVConfig struct {
	SecuritiesPath string `yaml:"securities_path" mapstructure:"securities_path"`
	ReportsPath    string `yaml:"reports_path" mapstructure:"reports_path"`
	PricesPath     string `yaml:"prices_path" mapstructure:"prices_path"`
	BenchmarkPath  string `yaml:"benchmark_path" mapstructure:"benchmark_path"`
	Encoding       string `yaml:"encoding" mapstructure:"encoding"`
}

// CSVLoader reads pipeline inputs from CSV files.
type CSVLoader struct {
	cfg CSVConfig
}

// NewCSVLoader validates that every input path is set.
func NewCSVLoader(cfg CSVConfig) (*CSVLoader, error) {
	if cfg.SecuritiesPath == "" || cfg.ReportsPath == "" || cfg.PricesPath == "" || cfg.BenchmarkPath == "" {
		return nil, eris.New("ingest: all four input paths must be set")
	}
	if cfg.Encoding != "" {
		if _, err := htmlindex.Get(cfg.Encoding); err != nil {
			return nil, eris.Wrapf(err, "ingest: unknown encoding %q", cfg.Encoding)
		}
	}
	return &CSVLoader{cfg: cfg}, nil
}

// isoDate parses bare yyyy-mm-dd values; empty stays zero.
type isoDate struct {
	time.Time
}

func (d *isoDate) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02", string(b), time.UTC)
	if err != nil {
		return eris.Wrapf(err, "ingest: parse date %q", string(b))
	}
	d.Time = t
	return nil
}

type securityRecord struct {
	ID       string  `csv:"id"`
	Listed   isoDate `csv:"listed"`
	Delisted isoDate `csv:"delisted"`
}

type reportRecord struct {
	SecurityID  string   `csv:"security_id"`
	PeriodEnd   isoDate  `csv:"period_end"`
	FiledAt     isoDate  `csv:"filed_at"`
	Assets      *float64 `csv:"assets"`
	Liabilities *float64 `csv:"liabilities"`
	Equity      *float64 `csv:"equity"`
	Revenue     *float64 `csv:"revenue"`
	COGS        *float64 `csv:"cogs"`
	NetIncome   *float64 `csv:"net_income"`
	OperatingCF *float64 `csv:"operating_cf"`
	Capex       *float64 `csv:"capex"`
	EPSDiluted  *float64 `csv:"eps_diluted"`
	SharesOut   *float64 `csv:"shares_outstanding"`
}

type priceRecord struct {
	SecurityID string  `csv:"security_id"`
	TradeDate  isoDate `csv:"trade_date"`
	Close      float64 `csv:"close"`
	AdjClose   float64 `csv:"adj_close"`
	Volume     float64 `csv:"volume"`
}

// Securities loads the security reference list.
func (l *CSVLoader) Securities(ctx context.Context) ([]model.Security, error) {
	var out []model.Security
	err := l.decodeFile(ctx, l.cfg.SecuritiesPath, func(dec *csvutil.Decoder) error {
		var rec securityRecord
		if err := dec.Decode(&rec); err != nil {
			return err
		}
		out = append(out, model.Security{
			ID:       rec.ID,
			Listed:   rec.Listed.Time,
			Delisted: rec.Delisted.Time,
		})
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: securities")
	}
	return out, nil
}

// Reports loads fundamental reports, rejecting records that violate the
// as-of invariant. Each rejection is logged; the rest of the file loads.
func (l *CSVLoader) Reports(ctx context.Context) (*ReportSet, error) {
	log := zap.L().With(zap.String("component", "ingest"))
	set := &ReportSet{}

	err := l.decodeFile(ctx, l.cfg.ReportsPath, func(dec *csvutil.Decoder) error {
		var rec reportRecord
		if err := dec.Decode(&rec); err != nil {
			return err
		}

		report := model.FundamentalReport{
			SecurityID: rec.SecurityID,
			PeriodEnd:  rec.PeriodEnd.Time,
			FiledAt:    rec.FiledAt.Time,
			Values:     recordValues(rec),
		}
		if err := report.Validate(); err != nil {
			set.Rejected++
			log.Warn("rejecting invalid report",
				zap.String("security", rec.SecurityID),
				zap.Error(err),
			)
			return nil
		}
		set.Accepted = append(set.Accepted, report)
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: reports")
	}
	return set, nil
}

// Prices loads the per-security price bars.
func (l *CSVLoader) Prices(ctx context.Context) ([]model.PriceBar, error) {
	bars, err := l.loadBars(ctx, l.cfg.PricesPath)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: prices")
	}
	return bars, nil
}

// Benchmark loads the benchmark series, shipped in the same bar shape.
func (l *CSVLoader) Benchmark(ctx context.Context) ([]model.PriceBar, error) {
	bars, err := l.loadBars(ctx, l.cfg.BenchmarkPath)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: benchmark")
	}
	return bars, nil
}

func (l *CSVLoader) loadBars(ctx context.Context, path string) ([]model.PriceBar, error) {
	var out []model.PriceBar
	err := l.decodeFile(ctx, path, func(dec *csvutil.Decoder) error {
		var rec priceRecord
		if err := dec.Decode(&rec); err != nil {
			return err
		}
		out = append(out, model.PriceBar{
			SecurityID: rec.SecurityID,
			TradeDate:  rec.TradeDate.Time,
			Close:      rec.Close,
			AdjClose:   rec.AdjClose,
			Volume:     rec.Volume,
		})
		return nil
	})
	return out, err
}

// decodeFile opens path, applies the configured charset, and calls next
// for every row until EOF.
func (l *CSVLoader) decodeFile(ctx context.Context, path string, next func(*csvutil.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if l.cfg.Encoding != "" {
		enc, err := htmlindex.Get(l.cfg.Encoding)
		if err != nil {
			return eris.Wrapf(err, "encoding %q", l.cfg.Encoding)
		}
		r = enc.NewDecoder().Reader(f)
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return eris.Wrapf(err, "decode header of %s", path)
	}

	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "cancelled")
		}
		if err := next(dec); err == io.EOF {
			return nil
		} else if err != nil {
			return eris.Wrapf(err, "decode row of %s", path)
		}
	}
}

func recordValues(rec reportRecord) map[string]float64 {
	values := make(map[string]float64, 10)
	put := func(name string, v *float64) {
		if v != nil {
			values[name] = *v
		}
	}
	put(model.FieldAssets, rec.Assets)
	put(model.FieldLiabilities, rec.Liabilities)
	put(model.FieldEquity, rec.Equity)
	put(model.FieldRevenue, rec.Revenue)
	put(model.FieldCOGS, rec.COGS)
	put(model.FieldNetIncome, rec.NetIncome)
	put(model.FieldOperatingCF, rec.OperatingCF)
	put(model.FieldCapex, rec.Capex)
	put(model.FieldEPSDiluted, rec.EPSDiluted)
	put(model.FieldSharesOut, rec.SharesOut)
	return values
}
