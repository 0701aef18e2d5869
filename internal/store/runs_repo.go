package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postpilot/internal/core"
)

var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, plan_id, user_id, status, progress, stage, ideas_requested, posts_composed, posts_scheduled,
	scheduled_at, started_at, ended_at, error, created_at`

func (s *Store) InsertRun(ctx context.Context, run *core.AutopilotRun) error {
	run.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.PlanID, run.UserID, run.Status, run.Progress, run.Stage, run.IdeasRequested,
		run.PostsComposed, run.PostsScheduled, formatTime(run.ScheduledAt), nullableTime(run.StartedAt),
		nullableTime(run.EndedAt), nullableString(run.Error), formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) MarkRunStarted(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, started_at = ?
		WHERE id = ?
	`, core.RunStatusRunning, formatTime(startedAt), id)
	if err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	return expectRow(res, ErrRunNotFound)
}

// UpdateRunProgress records the percentage and stage label of a running generation.
func (s *Store) UpdateRunProgress(ctx context.Context, id string, progress int, stage string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET progress = ?, stage = ?
		WHERE id = ?
	`, progress, stage, id)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return expectRow(res, ErrRunNotFound)
}

func (s *Store) MarkRunCompleted(ctx context.Context, id string, status core.RunStatus, endedAt time.Time, counts core.RunCounts, errMsg *string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, ended_at = ?, ideas_requested = ?, posts_composed = ?, posts_scheduled = ?, error = ?,
			progress = CASE WHEN ? = 'succeeded' THEN 100 ELSE progress END
		WHERE id = ?
	`, status, formatTime(endedAt), counts.IdeasRequested, counts.PostsComposed, counts.PostsScheduled,
		nullableString(errMsg), status, id)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	return expectRow(res, ErrRunNotFound)
}

func (s *Store) UpdateRunStatus(ctx context.Context, id string, status core.RunStatus, errMsg *string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error = ?
		WHERE id = ?
	`, status, nullableString(errMsg), id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return expectRow(res, ErrRunNotFound)
}

func (s *Store) GetRun(ctx context.Context, id string) (*core.AutopilotRun, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, planID string, limit, offset int) ([]*core.AutopilotRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE plan_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, planID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*core.AutopilotRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PruneOldRuns keeps only the newest RunRetention finished runs of a plan.
func (s *Store) PruneOldRuns(ctx context.Context, planID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id IN (
			SELECT id FROM runs
			WHERE plan_id = ? AND status NOT IN (?, ?)
			ORDER BY created_at DESC
			LIMIT -1 OFFSET ?
		)
	`, planID, core.RunStatusQueued, core.RunStatusRunning, s.RunRetention)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// FailInterruptedRuns marks runs left running by a previous process as failed.
func (s *Store) FailInterruptedRuns(ctx context.Context, endedAt time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, ended_at = ?, error = ?
		WHERE status IN (?, ?)
	`, core.RunStatusFailed, formatTime(endedAt), "interrupted by restart", core.RunStatusQueued, core.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

func expectRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func scanRun(scanner rowScanner) (*core.AutopilotRun, error) {
	var (
		run         core.AutopilotRun
		status      string
		scheduledAt string
		startedAt   sql.NullString
		endedAt     sql.NullString
		errMsg      sql.NullString
		createdAt   string
	)
	if err := scanner.Scan(&run.ID, &run.PlanID, &run.UserID, &status, &run.Progress, &run.Stage,
		&run.IdeasRequested, &run.PostsComposed, &run.PostsScheduled, &scheduledAt, &startedAt, &endedAt,
		&errMsg, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = core.RunStatus(status)
	run.Error = nullToPtr(errMsg)

	var err error
	if run.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, err
	}
	if run.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if run.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &run, nil
}
