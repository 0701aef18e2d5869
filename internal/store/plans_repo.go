package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"postpilot/internal/core"
)

var ErrPlanNotFound = errors.New("plan not found")

const planColumns = `id, user_id, name, weeks, posts_per_week, posts_per_day, platforms, include_images,
	cron, status, last_run_at, next_run_at, created_at, updated_at`

func (s *Store) InsertPlan(ctx context.Context, plan *core.AutopilotPlan) error {
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	platforms, err := encodePlatforms(plan.Platforms)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, plan.ID, plan.UserID, nullableString(plan.Name), plan.Weeks, plan.PostsPerWeek, plan.PostsPerDay,
		platforms, boolToInt(plan.IncludeImages), plan.Cron, plan.Status,
		nullableTime(plan.LastRunAt), nullableTime(plan.NextRunAt), formatTime(plan.CreatedAt), formatTime(plan.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *Store) UpdatePlan(ctx context.Context, plan *core.AutopilotPlan) error {
	plan.UpdatedAt = time.Now().UTC()
	platforms, err := encodePlatforms(plan.Platforms)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE plans
		SET name = ?, weeks = ?, posts_per_week = ?, posts_per_day = ?, platforms = ?, include_images = ?,
			cron = ?, status = ?, last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?
	`, nullableString(plan.Name), plan.Weeks, plan.PostsPerWeek, plan.PostsPerDay, platforms,
		boolToInt(plan.IncludeImages), plan.Cron, plan.Status, nullableTime(plan.LastRunAt),
		nullableTime(plan.NextRunAt), formatTime(plan.UpdatedAt), plan.ID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan rows: %w", err)
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// DeletePlan removes the plan; its runs go with it through the foreign key.
func (s *Store) DeletePlan(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*core.AutopilotPlan, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// ListPlans returns plans newest first. Empty userID lists every user's plans.
func (s *Store) ListPlans(ctx context.Context, userID string, status *core.PlanStatus) ([]*core.AutopilotPlan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE 1 = 1`
	var args []any
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()
	var plans []*core.AutopilotPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Store) UpdatePlanScheduleInfo(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE plans
		SET last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?
	`, nullableTime(lastRunAt), nullableTime(nextRunAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update plan schedule info: %w", err)
	}
	return nil
}

func (s *Store) UpdatePlanNextRun(ctx context.Context, id string, nextRunAt *time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE plans
		SET next_run_at = ?, updated_at = ?
		WHERE id = ?
	`, nullableTime(nextRunAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update next_run_at: %w", err)
	}
	return nil
}

func encodePlatforms(platforms []core.Platform) (string, error) {
	if platforms == nil {
		platforms = []core.Platform{}
	}
	data, err := json.Marshal(platforms)
	if err != nil {
		return "", fmt.Errorf("encode platforms: %w", err)
	}
	return string(data), nil
}

func decodePlatforms(raw string) ([]core.Platform, error) {
	var platforms []core.Platform
	if raw == "" {
		return platforms, nil
	}
	if err := json.Unmarshal([]byte(raw), &platforms); err != nil {
		return nil, fmt.Errorf("decode platforms: %w", err)
	}
	return platforms, nil
}

func scanPlan(scanner rowScanner) (*core.AutopilotPlan, error) {
	var (
		plan      core.AutopilotPlan
		name      sql.NullString
		platforms string
		images    int
		status    string
		lastRun   sql.NullString
		nextRun   sql.NullString
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&plan.ID, &plan.UserID, &name, &plan.Weeks, &plan.PostsPerWeek, &plan.PostsPerDay,
		&platforms, &images, &plan.Cron, &status, &lastRun, &nextRun, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	plan.Name = nullToPtr(name)
	plan.IncludeImages = images != 0
	plan.Status = core.PlanStatus(status)

	var err error
	if plan.Platforms, err = decodePlatforms(platforms); err != nil {
		return nil, err
	}
	if plan.LastRunAt, err = parseNullTime(lastRun); err != nil {
		return nil, err
	}
	if plan.NextRunAt, err = parseNullTime(nextRun); err != nil {
		return nil, err
	}
	if plan.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if plan.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &plan, nil
}
