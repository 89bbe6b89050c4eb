package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/panel-cli/internal/feature"
	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/panel"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	report     TEXT,
	columns    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS panel_rows (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	security_id      TEXT NOT NULL,
	as_of_date       TEXT NOT NULL,
	features         TEXT NOT NULL,
	label            REAL NOT NULL,
	label_up         INTEGER NOT NULL,
	benchmark_return REAL NOT NULL,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report *model.QualityReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET report = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(reportJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, report, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, report, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SavePanel writes the assembled table inside one transaction. Re-saving a
// run replaces its rows, so retried exports stay idempotent.
func (s *SQLiteStore) SavePanel(ctx context.Context, runID string, table *panel.Table) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save panel")
	}
	defer tx.Rollback()

	columnsJSON, err := json.Marshal(table.Columns)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal columns")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET columns = ? WHERE id = ?`, string(columnsJSON), runID,
	); err != nil {
		return 0, eris.Wrapf(err, "sqlite: save columns for %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO panel_rows
		 (run_id, security_id, as_of_date, features, label, label_up, benchmark_return)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save panel")
	}
	defer stmt.Close()

	var n int64
	for _, row := range table.Rows {
		features, err := encodeFeatures(table.Columns, row.Features)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			runID, row.SecurityID, row.AsOfDate.Format("2006-01-02"),
			string(features), row.Label, row.LabelUp, row.BenchmarkReturn,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert panel row for %s", row.SecurityID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save panel")
	}
	return n, nil
}

// LoadPanel reads a saved table back in (as-of date, security) order.
func (s *SQLiteStore) LoadPanel(ctx context.Context, runID string) (*panel.Table, error) {
	var columnsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT columns FROM runs WHERE id = ?`, runID,
	).Scan(&columnsJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load columns")
	}
	if !columnsJSON.Valid {
		return nil, eris.Errorf("sqlite: run %s has no saved panel", runID)
	}

	var columns []string
	if err := json.Unmarshal([]byte(columnsJSON.String), &columns); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal columns")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT security_id, as_of_date, features, label, label_up, benchmark_return
		 FROM panel_rows WHERE run_id = ? ORDER BY as_of_date, security_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load panel")
	}
	defer rows.Close()

	table := &panel.Table{Columns: columns}
	for rows.Next() {
		var row panel.Row
		var date, features string
		if err := rows.Scan(&row.SecurityID, &date, &features,
			&row.Label, &row.LabelUp, &row.BenchmarkReturn); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan panel row")
		}
		row.AsOfDate, err = time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse as_of_date %q", date)
		}
		row.Features, err = decodeFeatures(columns, []byte(features))
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}
	return table, eris.Wrap(rows.Err(), "sqlite: load panel iterate")
}

func (s *SQLiteStore) SaveFeatureCatalog(ctx context.Context, specs []feature.Spec) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save catalog")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO feature_catalog (name, family, base, window, min_periods)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save catalog")
	}
	defer stmt.Close()

	var n int64
	for _, sp := range specs {
		if _, err := stmt.ExecContext(ctx,
			sp.Name, string(sp.Family), sp.Base, sp.Window, sp.MinPeriods,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert catalog entry %s", sp.Name)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save catalog")
	}
	return n, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var reportJSON sql.NullString

	err := row.Scan(&r.ID, &r.Status, &reportJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if reportJSON.Valid {
		r.Report = &model.QualityReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	return &r, nil
}
