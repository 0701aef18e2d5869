package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"postpilot/internal/core"
)

var (
	ErrPostNotFound = errors.New("post not found")
	// ErrPostNotScheduled means the post was already published, failed or removed.
	ErrPostNotScheduled = errors.New("post is not in scheduled state")
)

const postColumns = `id, user_id, run_id, content, image_url, platform, category, scheduled_for, status,
	attempts, last_error, published_at, remote_id, created_at, updated_at`

// InsertScheduledPosts writes all posts in one transaction.
func (s *Store) InsertScheduledPosts(ctx context.Context, posts []*core.ScheduledPost) error {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert posts: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scheduled_posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert post: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range posts {
		if p.ID == "" {
			p.ID = core.NewID()
		}
		if p.Status == "" {
			p.Status = core.PostStatusScheduled
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.UserID, nullableString(p.RunID), p.Content, nullableString(p.ImageURL),
			string(p.Platform), string(p.Category), formatTime(p.ScheduledFor), string(p.Status),
			p.Attempts, nullableString(p.LastError), nullableTime(p.PublishedAt), nullableString(p.RemoteID),
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert post %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert posts: %w", err)
	}
	return nil
}

// QueryDuePosts returns up to limit scheduled posts whose time has come,
// oldest first.
func (s *Store) QueryDuePosts(ctx context.Context, now time.Time, limit int) ([]*core.ScheduledPost, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM scheduled_posts
		WHERE status = ? AND scheduled_for <= ?
		ORDER BY scheduled_for ASC
		LIMIT ?
	`, core.PostStatusScheduled, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query due posts: %w", err)
	}
	return collectPosts(rows)
}

// MarkPostPublished transitions a scheduled post to published. It fails with
// ErrPostNotScheduled if another tick already moved it.
func (s *Store) MarkPostPublished(ctx context.Context, id string, publishedAt time.Time, remoteID string) error {
	var remote *string
	if remoteID != "" {
		remote = &remoteID
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE scheduled_posts
		SET status = ?, published_at = ?, remote_id = ?, last_error = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, core.PostStatusPublished, formatTime(publishedAt), nullableString(remote), formatTime(time.Now()),
		id, core.PostStatusScheduled)
	if err != nil {
		return fmt.Errorf("mark post published: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark post published rows: %w", err)
	}
	if rows == 0 {
		return ErrPostNotScheduled
	}
	return nil
}

// RecordPublishFailure bumps the attempt counter. When maxAttempts > 0 and
// the counter reaches it, the post moves to failed. It returns the new
// attempt count and status.
func (s *Store) RecordPublishFailure(ctx context.Context, id, errMsg string, maxAttempts int) (int, core.PostStatus, error) {
	var (
		attempts int
		status   string
	)
	err := s.DB.QueryRowContext(ctx, `
		UPDATE scheduled_posts
		SET attempts = attempts + 1,
			last_error = ?,
			updated_at = ?,
			status = CASE WHEN ? > 0 AND attempts + 1 >= ? THEN ? ELSE status END
		WHERE id = ? AND status = ?
		RETURNING attempts, status
	`, errMsg, formatTime(time.Now()), maxAttempts, maxAttempts, core.PostStatusFailed,
		id, core.PostStatusScheduled).Scan(&attempts, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrPostNotScheduled
	}
	if err != nil {
		return 0, "", fmt.Errorf("record publish failure: %w", err)
	}
	return attempts, core.PostStatus(status), nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*core.ScheduledPost, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM scheduled_posts WHERE id = ?`, id)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return post, nil
}

// PostFilter narrows ListPostsByUser. Zero fields are ignored; To is exclusive.
type PostFilter struct {
	From   *time.Time
	To     *time.Time
	Status *core.PostStatus
	Limit  int
	Offset int
}

// ListPostsByUser returns a user's posts in schedule order.
func (s *Store) ListPostsByUser(ctx context.Context, userID string, filter PostFilter) ([]*core.ScheduledPost, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if filter.From != nil {
		where = append(where, "scheduled_for >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "scheduled_for < ?")
		args = append(args, formatTime(*filter.To))
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit, filter.Offset)
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM scheduled_posts
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY scheduled_for ASC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return collectPosts(rows)
}

// DeleteUnpublished removes a user's scheduled and pending posts, as when
// regenerating a calendar from scratch.
func (s *Store) DeleteUnpublished(ctx context.Context, userID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM scheduled_posts
		WHERE user_id = ? AND status IN (?, ?)
	`, userID, core.PostStatusScheduled, core.PostStatusPending)
	if err != nil {
		return 0, fmt.Errorf("delete unpublished posts: %w", err)
	}
	return res.RowsAffected()
}

// CountPostsByStatus summarizes a user's calendar.
func (s *Store) CountPostsByStatus(ctx context.Context, userID string) (map[core.PostStatus]int, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT status, COUNT(1) FROM scheduled_posts WHERE user_id = ? GROUP BY status
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	defer rows.Close()
	counts := make(map[core.PostStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan post count: %w", err)
		}
		counts[core.PostStatus(status)] = n
	}
	return counts, rows.Err()
}

func collectPosts(rows *sql.Rows) ([]*core.ScheduledPost, error) {
	defer rows.Close()
	var posts []*core.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func scanPost(scanner rowScanner) (*core.ScheduledPost, error) {
	var (
		p            core.ScheduledPost
		runID        sql.NullString
		imageURL     sql.NullString
		platform     string
		category     string
		scheduledFor string
		status       string
		lastError    sql.NullString
		publishedAt  sql.NullString
		remoteID     sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := scanner.Scan(&p.ID, &p.UserID, &runID, &p.Content, &imageURL, &platform, &category,
		&scheduledFor, &status, &p.Attempts, &lastError, &publishedAt, &remoteID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	p.RunID = nullToPtr(runID)
	p.ImageURL = nullToPtr(imageURL)
	p.Platform = core.Platform(platform)
	p.Category = core.Category(category)
	p.Status = core.PostStatus(status)
	p.LastError = nullToPtr(lastError)
	p.RemoteID = nullToPtr(remoteID)

	var err error
	if p.ScheduledFor, err = parseTime(scheduledFor); err != nil {
		return nil, err
	}
	if p.PublishedAt, err = parseNullTime(publishedAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
