package model

import "time"

// RunStatus tracks a panel build through its phases.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusJoining     RunStatus = "joining"
	RunStatusWinsorizing RunStatus = "winsorizing"
	RunStatusComputing   RunStatus = "computing"
	RunStatusAssembling  RunStatus = "assembling"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCancelled   RunStatus = "cancelled"
)

// PhaseStatus is the outcome of one pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult records timing and outcome for one phase of a run.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QualityReport aggregates per-record and per-feature problems for a run.
// A run either completes with this report or fails fast on a structural
// error; rows are never dropped silently.
type QualityReport struct {
	Securities      int   `json:"securities" yaml:"securities"`
	TradingDays     int   `json:"trading_days" yaml:"trading_days"`
	ReportsAccepted int64 `json:"reports_accepted" yaml:"reports_accepted"`
	ReportsRejected int64 `json:"reports_rejected" yaml:"reports_rejected"`
	RowsJoined      int64 `json:"rows_joined" yaml:"rows_joined"`
	RowsEmitted     int64 `json:"rows_emitted" yaml:"rows_emitted"`
	RowsDropped     int64 `json:"rows_dropped" yaml:"rows_dropped"` // invalid label
	LabelsInvalid   int64 `json:"labels_invalid" yaml:"labels_invalid"`

	// InvalidFeatures counts invalid occurrences per feature name. Only
	// nonzero entries are kept.
	InvalidFeatures map[string]int64 `json:"invalid_features,omitempty" yaml:"invalid_features,omitempty"`

	// WinsorizeSkipped counts (field, date) cross-sections passed through
	// unchanged because the non-missing sample was below the minimum.
	WinsorizeSkipped int64 `json:"winsorize_skipped" yaml:"winsorize_skipped"`

	Phases []PhaseResult `json:"phases" yaml:"phases"`
}

// Run is one panel build execution.
type Run struct {
	ID        string         `json:"id"`
	Status    RunStatus      `json:"status"`
	Report    *QualityReport `json:"report,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
