package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "audit:repository"

var outcomeColumns = []string{
	"conn_id", "request_id", "command", "exec_context", "status",
	"error_code", "submitted_at", "completed_at", "duration_ms",
}

// Repository provides database access for command outcomes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertOutcomes bulk-loads a batch with COPY.
func (r *Repository) InsertOutcomes(ctx context.Context, batch []Outcome) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(batch))
	for _, o := range batch {
		var code any
		if o.ErrorCode != "" {
			code = o.ErrorCode
		}
		rows = append(rows, []any{
			o.ConnID, o.RequestID, o.Command, o.Context, o.Status,
			code, o.SubmittedAt, o.CompletedAt, float64(o.Duration().Microseconds()) / 1000,
		})
	}
	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{"command_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("%s - copy %d outcomes: %w", repoLogPrefix, len(batch), err)
	}
	slog.Debug(fmt.Sprintf("%s - stored %d outcomes", repoLogPrefix, n))
	return n, nil
}

// RecentOutcomes returns the latest outcomes, newest first, optionally
// filtered by command.
func (r *Repository) RecentOutcomes(ctx context.Context, command string, limit int) ([]Outcome, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT conn_id, request_id, command, exec_context, status,
		        COALESCE(error_code, ''), submitted_at, completed_at
		 FROM command_outcomes
		 WHERE ($1 = '' OR command = $1)
		 ORDER BY completed_at DESC, id DESC
		 LIMIT $2`, command, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - query recent outcomes: %w", repoLogPrefix, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Outcome, error) {
		var o Outcome
		err := row.Scan(&o.ConnID, &o.RequestID, &o.Command, &o.Context, &o.Status,
			&o.ErrorCode, &o.SubmittedAt, &o.CompletedAt)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s - scan outcomes: %w", repoLogPrefix, err)
	}
	return out, nil
}

// ClearOutcomes deletes every stored outcome and returns the count.
func (r *Repository) ClearOutcomes(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM command_outcomes`)
	if err != nil {
		return 0, fmt.Errorf("%s - clear outcomes: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - cleared %d outcomes", repoLogPrefix, tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
