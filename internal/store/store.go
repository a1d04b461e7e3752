// Package store persists the extraction run ledger and serves it as a
// result cache keyed by document hash.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pdftext/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Backend      string          `json:"backend,omitempty"`
	SHA256       string          `json:"sha256,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for extraction runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, doc model.Document) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, runErr *model.RunError) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Result cache: the newest successful run for a document hash, or nil.
	FindCompletedBySHA(ctx context.Context, sha256 string) (*model.Run, error)

	// Stage aggregates since the given time.
	StageStats(ctx context.Context, since time.Time) ([]model.StageStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// statusFor maps a finished result to its run status.
func statusFor(result *model.RunResult) model.RunStatus {
	if result != nil && result.OK {
		return model.RunStatusComplete
	}
	return model.RunStatusFailed
}

// errorFor describes an unsuccessful result, or returns nil.
func errorFor(result *model.RunResult) *model.RunError {
	if result == nil {
		return &model.RunError{Message: "no result", Kind: "no_text"}
	}
	if result.OK {
		return nil
	}
	return &model.RunError{Message: result.Text, Kind: result.Kind}
}

const defaultListLimit = 100
