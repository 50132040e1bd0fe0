package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
)

type ScheduledPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	UpdateScheduled(ctx context.Context, post *models.ScheduledPost) (bool, error)
	Remove(ctx context.Context, id int64) error

	FindDuePosts(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error)
	MarkPublishing(ctx context.Context, id int64) (*models.ScheduledPost, error)
	MovePublished(ctx context.Context, scheduledID int64, published *models.PublishedPost) (int64, error)
	RecordFailure(ctx context.Context, id int64, retryCount int, status, message string) error
	ResetForRetry(ctx context.Context, id int64) (bool, error)
	ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error)
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const scheduledPostColumns = `id, user_id, content, hashtags, media_url, scheduled_for, status, error_message, retry_count, max_retries, content_hash, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	err := row.Scan(&post.ID, &post.UserID, &post.Content, &post.Hashtags, &post.MediaURL, &post.ScheduledFor,
		&post.Status, &post.ErrorMessage, &post.RetryCount, &post.MaxRetries, &post.ContentHash, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	post.ScheduledFor = post.ScheduledFor.UTC()
	return &post, nil
}

func (r *scheduledPostRepository) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO scheduled_posts (user_id, content, hashtags, media_url, scheduled_for, status, max_retries, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	args := []any{post.UserID, post.Content, post.Hashtags, post.MediaURL, post.ScheduledFor.UTC(), models.PostStatusScheduled, post.MaxRetries, post.ContentHash}

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE id = $1`

	post, err := scanScheduledPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *scheduledPostRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE user_id = $1 ORDER BY scheduled_for ASC`
	return r.list(ctx, query, userID)
}

func (r *scheduledPostRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM scheduled_posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// UpdateScheduled rewrites user-editable fields, only while the row is still scheduled.
func (r *scheduledPostRepository) UpdateScheduled(ctx context.Context, post *models.ScheduledPost) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET content = $1,
			hashtags = $2,
			media_url = $3,
			scheduled_for = $4,
			content_hash = $5,
			updated_at = NOW()
		WHERE id = $6 AND status = $7
	`
	res, err := r.db.ExecContext(ctx, query, post.Content, post.Hashtags, post.MediaURL, post.ScheduledFor.UTC(),
		post.ContentHash, post.ID, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affectedOne(res)
}

func (r *scheduledPostRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM scheduled_posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) FindDuePosts(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	query := `
		SELECT ` + scheduledPostColumns + `
		FROM scheduled_posts
		WHERE status = $1 AND scheduled_for <= $2 AND retry_count < max_retries
		ORDER BY scheduled_for ASC, id ASC
	`
	return r.list(ctx, query, models.PostStatusScheduled, now.UTC())
}

// MarkPublishing claims a row and returns it as claimed, so edits made after
// the due query are what gets published. Nil means another pass got there first.
func (r *scheduledPostRepository) MarkPublishing(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING ` + scheduledPostColumns

	post, err := scanScheduledPost(r.db.QueryRowContext(ctx, query, models.PostStatusPublishing, id, models.PostStatusScheduled))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

// MovePublished inserts the published row and deletes the scheduled one in a
// single transaction. The insert is keyed on scheduled_post_id, so replaying a
// half-finished move never creates a second published row.
func (r *scheduledPostRepository) MovePublished(ctx context.Context, scheduledID int64, published *models.PublishedPost) (int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO published_posts (user_id, content, hashtags, media_url, content_hash, scheduled_post_id, tweet_id, tweet_url, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (scheduled_post_id) DO NOTHING
		RETURNING id
	`
	var id int64
	err = tx.QueryRowContext(ctx, insert, published.UserID, published.Content, published.Hashtags, published.MediaURL,
		published.ContentHash, scheduledID, published.TweetID, published.TweetURL, published.PublishedAt.UTC()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `SELECT id FROM published_posts WHERE scheduled_post_id = $1`, scheduledID).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, fmt.Errorf("error inserting published post: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_posts WHERE id = $1`, scheduledID); err != nil {
		slog.Info(err.Error())
		return 0, fmt.Errorf("error deleting scheduled post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	published.ID = id
	published.ScheduledPostID = sql.NullInt64{Int64: scheduledID, Valid: true}
	return id, nil
}

func (r *scheduledPostRepository) RecordFailure(ctx context.Context, id int64, retryCount int, status, message string) error {
	query := `
		UPDATE scheduled_posts
		SET retry_count = $1,
			status = $2,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, retryCount, status, message, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ResetForRetry puts a failed or exhausted post back into the due pool.
func (r *scheduledPostRepository) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
			retry_count = 0,
			error_message = NULL,
			updated_at = NOW()
		WHERE id = $2 AND (status = $3 OR (status = $1 AND retry_count >= max_retries))
	`
	res, err := r.db.ExecContext(ctx, query, models.PostStatusScheduled, id, models.PostStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affectedOne(res)
}

// ReleaseStale fails rows stuck in publishing since before olderThan. The
// publish call may have gone out, so they wait for a manual retry instead of
// returning to the due pool.
func (r *scheduledPostRepository) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
			error_message = $2,
			updated_at = NOW()
		WHERE status = $3 AND updated_at < $4
	`
	res, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, models.StalePublishMessage, models.PostStatusPublishing, olderThan.UTC())
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *scheduledPostRepository) list(ctx context.Context, query string, args ...any) ([]*models.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanScheduledPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n == 1, nil
}
