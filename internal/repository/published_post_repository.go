package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type PublishedPostRepository interface {
	GetByUserID(ctx context.Context, userID int64) ([]*models.PublishedPost, error)
	GetByScheduledPostID(ctx context.Context, scheduledID int64) (*models.PublishedPost, error)
	Record(ctx context.Context, p *models.PublishedPost) (int64, error)
	ExistsSince(ctx context.Context, userID int64, contentHash string, since time.Time) (bool, error)
	ListAll(ctx context.Context) ([]*models.PublishedPost, error)
	ListForMetrics(ctx context.Context, since time.Time) ([]*models.PublishedPost, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	UpdateMetrics(ctx context.Context, id int64, metrics *transfer.PublicMetrics) error
}

type publishedPostRepository struct {
	db *sql.DB
}

func NewPublishedPostRepository(db *sql.DB) PublishedPostRepository {
	return &publishedPostRepository{db: db}
}

const publishedPostColumns = `id, user_id, content, hashtags, media_url, content_hash, scheduled_post_id, tweet_id, tweet_url, published_at, like_count, retweet_count, reply_count, impression_count, metrics_updated_at`

func scanPublishedPost(row rowScanner) (*models.PublishedPost, error) {
	var p models.PublishedPost
	err := row.Scan(&p.ID, &p.UserID, &p.Content, &p.Hashtags, &p.MediaURL, &p.ContentHash, &p.ScheduledPostID,
		&p.TweetID, &p.TweetURL, &p.PublishedAt, &p.LikeCount, &p.RetweetCount, &p.ReplyCount, &p.ImpressionCount, &p.MetricsUpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *publishedPostRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.PublishedPost, error) {
	query := `SELECT ` + publishedPostColumns + ` FROM published_posts WHERE user_id = $1 ORDER BY published_at DESC`
	return r.list(ctx, query, userID)
}

func (r *publishedPostRepository) GetByScheduledPostID(ctx context.Context, scheduledID int64) (*models.PublishedPost, error) {
	query := `SELECT ` + publishedPostColumns + ` FROM published_posts WHERE scheduled_post_id = $1`

	p, err := scanPublishedPost(r.db.QueryRowContext(ctx, query, scheduledID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return p, nil
}

// Record stores a publish that did not come from a scheduled row.
func (r *publishedPostRepository) Record(ctx context.Context, p *models.PublishedPost) (int64, error) {
	query := `
		INSERT INTO published_posts (user_id, content, hashtags, media_url, content_hash, tweet_id, tweet_url, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, p.UserID, p.Content, p.Hashtags, p.MediaURL, p.ContentHash,
		p.TweetID, p.TweetURL, p.PublishedAt.UTC()).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (r *publishedPostRepository) ExistsSince(ctx context.Context, userID int64, contentHash string, since time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM published_posts WHERE user_id = $1 AND content_hash = $2 AND published_at >= $3)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, contentHash, since.UTC()).Scan(&exists); err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return exists, nil
}

func (r *publishedPostRepository) ListAll(ctx context.Context) ([]*models.PublishedPost, error) {
	query := `SELECT ` + publishedPostColumns + ` FROM published_posts ORDER BY user_id, id`
	return r.list(ctx, query)
}

func (r *publishedPostRepository) ListForMetrics(ctx context.Context, since time.Time) ([]*models.PublishedPost, error) {
	query := `
		SELECT ` + publishedPostColumns + `
		FROM published_posts
		WHERE tweet_id IS NOT NULL AND published_at >= $1
		ORDER BY published_at DESC
	`
	return r.list(ctx, query, since.UTC())
}

func (r *publishedPostRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM published_posts WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *publishedPostRepository) UpdateMetrics(ctx context.Context, id int64, metrics *transfer.PublicMetrics) error {
	query := `
		UPDATE published_posts
		SET like_count = $1,
			retweet_count = $2,
			reply_count = $3,
			impression_count = $4,
			metrics_updated_at = NOW()
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, metrics.LikeCount, metrics.RetweetCount, metrics.ReplyCount, metrics.ImpressionCount, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *publishedPostRepository) list(ctx context.Context, query string, args ...any) ([]*models.PublishedPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.PublishedPost
	for rows.Next() {
		p, err := scanPublishedPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
