// Package model defines the records persisted by the run ledger.
package model

import "time"

// RunStatus represents the state of an extraction run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Document identifies the input of a run.
type Document struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Run is one extraction of one document.
type Run struct {
	ID        string     `json:"id"`
	Document  Document   `json:"document"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     *RunError  `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.UpdatedAt.Sub(r.CreatedAt)
}

// RunResult holds the outcome of a finished run.
type RunResult struct {
	Backend   string        `json:"backend"`
	OK        bool          `json:"ok"`
	Kind      string        `json:"kind,omitempty"`
	Text      string        `json:"text"`
	Pages     []string      `json:"pages,omitempty"`
	PageCount int           `json:"page_count"`
	Capped    bool          `json:"capped"`
	Chars     int           `json:"chars"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Stages    []StageResult `json:"stages,omitempty"`
}

// StageResult records one backend stage of a run.
type StageResult struct {
	Backend   string `json:"backend"`
	Ran       bool   `json:"ran"`
	Skipped   string `json:"skipped,omitempty"`
	Pages     int    `json:"pages"`
	Filled    int    `json:"filled"`
	Chars     int    `json:"chars"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// RunError describes why a run failed before or during extraction.
type RunError struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// StageStats aggregates stage records for one backend.
type StageStats struct {
	Backend      string  `json:"backend"`
	Runs         int     `json:"runs"`
	Failures     int     `json:"failures"`
	Skipped      int     `json:"skipped"`
	AvgElapsedMS float64 `json:"avg_elapsed_ms"`
}
