package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/db"
	"github.com/sells-group/panel-cli/internal/feature"
	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/panel"
	"github.com/sells-group/panel-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"complete_run":      `UPDATE runs SET report = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, status, report, created_at, updated_at FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	// The database may still be starting when the CLI launches.
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.ShouldRetry = func(error) bool { return true }
	retryCfg.OnRetry = resilience.RetryLogger("postgres", "ping")
	if err := resilience.Do(ctx, retryCfg, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'queued',
	report     JSONB,
	columns    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS panel_rows (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	security_id      TEXT NOT NULL,
	as_of_date       DATE NOT NULL,
	features         JSONB NOT NULL,
	label            DOUBLE PRECISION NOT NULL,
	label_up         BOOLEAN NOT NULL,
	benchmark_return DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, security_id, as_of_date)
);

CREATE TABLE IF NOT EXISTS feature_catalog (
	name        TEXT PRIMARY KEY,
	family      TEXT NOT NULL,
	base        TEXT NOT NULL,
	window      INTEGER NOT NULL,
	min_periods INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_panel_rows_date ON panel_rows(run_id, as_of_date);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, report *model.QualityReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET report = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reportJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var reportNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, report, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &reportNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if reportNull != nil {
		r.Report = &model.QualityReport{}
		if err := json.Unmarshal(*reportNull, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, report, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var reportNull *[]byte

		if err := rows.Scan(&r.ID, &r.Status, &reportNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if reportNull != nil {
			r.Report = &model.QualityReport{}
			if err := json.Unmarshal(*reportNull, r.Report); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal report")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var panelColumns = []string{
	"run_id", "security_id", "as_of_date", "features",
	"label", "label_up", "benchmark_return",
}

// SavePanel replaces the run's rows and bulk-loads the table via COPY.
func (s *PostgresStore) SavePanel(ctx context.Context, runID string, table *panel.Table) (int64, error) {
	columnsJSON, err := json.Marshal(table.Columns)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal columns")
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE runs SET columns = $1 WHERE id = $2`, columnsJSON, runID,
	); err != nil {
		return 0, eris.Wrapf(err, "postgres: save columns for %s", runID)
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM panel_rows WHERE run_id = $1`, runID,
	); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear panel rows for %s", runID)
	}

	rows := make([][]any, 0, len(table.Rows))
	for _, row := range table.Rows {
		features, err := encodeFeatures(table.Columns, row.Features)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			runID, row.SecurityID, row.AsOfDate, features,
			row.Label, row.LabelUp, row.BenchmarkReturn,
		})
	}

	return db.CopyFrom(ctx, s.pool, "panel_rows", panelColumns, rows)
}

// LoadPanel reads a saved table back in (as-of date, security) order.
func (s *PostgresStore) LoadPanel(ctx context.Context, runID string) (*panel.Table, error) {
	var columnsNull *[]byte
	err := s.pool.QueryRow(ctx,
		`SELECT columns FROM runs WHERE id = $1`, runID,
	).Scan(&columnsNull)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load columns for %s", runID)
	}
	if columnsNull == nil {
		return nil, eris.Errorf("postgres: run %s has no saved panel", runID)
	}

	var columns []string
	if err := json.Unmarshal(*columnsNull, &columns); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal columns")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT security_id, as_of_date, features, label, label_up, benchmark_return
		 FROM panel_rows WHERE run_id = $1 ORDER BY as_of_date, security_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load panel")
	}
	defer rows.Close()

	table := &panel.Table{Columns: columns}
	for rows.Next() {
		var row panel.Row
		var features []byte
		if err := rows.Scan(&row.SecurityID, &row.AsOfDate, &features,
			&row.Label, &row.LabelUp, &row.BenchmarkReturn); err != nil {
			return nil, eris.Wrap(err, "postgres: scan panel row")
		}
		row.Features, err = decodeFeatures(columns, features)
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}
	return table, eris.Wrap(rows.Err(), "postgres: load panel iterate")
}

func (s *PostgresStore) SaveFeatureCatalog(ctx context.Context, specs []feature.Spec) (int64, error) {
	rows := make([][]any, 0, len(specs))
	for _, sp := range specs {
		rows = append(rows, []any{
			sp.Name, string(sp.Family), sp.Base, sp.Window, sp.MinPeriods,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "feature_catalog",
		Columns:      []string{"name", "family", "base", "window", "min_periods"},
		ConflictKeys: []string{"name"},
	}, rows)
}
