package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pdftext/internal/db"
	"github.com/sells-group/pdftext/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, document, sha256, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_run":      `SELECT ` + postgresRunColumns + ` FROM runs WHERE id = $1`,
	"find_by_sha":  `SELECT ` + postgresRunColumns + ` FROM runs WHERE sha256 = $1 AND status = $2 ORDER BY updated_at DESC LIMIT 1`,
	"complete_run": `UPDATE runs SET result = $1, error = $2, status = $3, backend = $4, updated_at = $5 WHERE id = $6`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg, preparedStatements)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document   JSONB NOT NULL,
	sha256     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	backend    TEXT NOT NULL DEFAULT '',
	result     JSONB,
	error      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	backend    TEXT NOT NULL,
	ran        BOOLEAN NOT NULL DEFAULT false,
	skipped    TEXT NOT NULL DEFAULT '',
	filled     INTEGER NOT NULL DEFAULT 0,
	chars      INTEGER NOT NULL DEFAULT 0,
	failed     BOOLEAN NOT NULL DEFAULT false,
	elapsed_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_sha256_status ON runs(sha256, status, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_run_stages_created_at ON run_stages(created_at);
`

var stageColumns = []string{"run_id", "backend", "ran", "skipped", "filled", "chars", "failed", "elapsed_ms", "created_at"}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, doc model.Document) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal document")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, document, sha256, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, docJSON, doc.SHA256, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Document:  doc,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	var errJSON []byte
	if runErr := errorFor(result); runErr != nil {
		if errJSON, err = json.Marshal(runErr); err != nil {
			return eris.Wrap(err, "postgres: marshal run error")
		}
	}
	backend := ""
	if result != nil {
		backend = result.Backend
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, error = $2, status = $3, backend = $4, updated_at = $5 WHERE id = $6`,
		resultJSON, errJSON, string(statusFor(result)), backend, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}

	if result == nil || len(result.Stages) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(result.Stages))
	for _, st := range result.Stages {
		rows = append(rows, []any{runID, st.Backend, st.Ran, st.Skipped, st.Filled, st.Chars, st.Error != "", st.ElapsedMS, now})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "run_stages", stageColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: insert stages for run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr *model.RunError) error {
	errJSON, err := json.Marshal(runErr)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run error")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		errJSON, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, document, status, result, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Backend != "" {
		query += fmt.Sprintf(` AND backend = $%d`, argIdx)
		args = append(args, filter.Backend)
		argIdx++
	}
	if filter.SHA256 != "" {
		query += fmt.Sprintf(` AND sha256 = $%d`, argIdx)
		args = append(args, filter.SHA256)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) FindCompletedBySHA(ctx context.Context, sha256 string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE sha256 = $1 AND status = $2 ORDER BY updated_at DESC LIMIT 1`,
		sha256, string(model.RunStatusComplete),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by sha")
	}
	return r, nil
}

func (s *PostgresStore) StageStats(ctx context.Context, since time.Time) ([]model.StageStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT backend,
		        COUNT(*) FILTER (WHERE ran),
		        COUNT(*) FILTER (WHERE failed),
		        COUNT(*) FILTER (WHERE NOT ran),
		        COALESCE(AVG(elapsed_ms) FILTER (WHERE ran), 0)::float8
		 FROM run_stages WHERE created_at >= $1
		 GROUP BY backend ORDER BY backend`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stage stats")
	}
	defer rows.Close()

	var out []model.StageStats
	for rows.Next() {
		var st model.StageStats
		var runs, failures, skipped int64
		if err := rows.Scan(&st.Backend, &runs, &failures, &skipped, &st.AvgElapsedMS); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage stats")
		}
		st.Runs, st.Failures, st.Skipped = int(runs), int(failures), int(skipped)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: stage stats iterate")
}

// scanPgRun returns pgx.ErrNoRows unwrapped so callers can map it.
func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var docJSON, resultJSON, errJSON []byte

	if err := row.Scan(&r.ID, &docJSON, &status, &resultJSON, &errJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := json.Unmarshal(docJSON, &r.Document); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal document")
	}
	if len(resultJSON) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	if len(errJSON) > 0 {
		r.Error = &model.RunError{}
		if err := json.Unmarshal(errJSON, r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal error")
		}
	}
	return &r, nil
}
