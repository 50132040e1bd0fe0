package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

// StatusStore is the reconciler's view of the scheduled_posts table.
type StatusStore interface {
	FindDuePosts(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error)
	MarkPublishing(ctx context.Context, id int64) (*models.ScheduledPost, error)
	MovePublished(ctx context.Context, scheduledID int64, published *models.PublishedPost) (int64, error)
	RecordFailure(ctx context.Context, id int64, retryCount int, status, message string) error
	ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// PublishedLookup finds a publish that already landed for a scheduled row.
type PublishedLookup interface {
	GetByScheduledPostID(ctx context.Context, scheduledID int64) (*models.PublishedPost, error)
}

const (
	bookkeepingTimeout = 30 * time.Second
	moveAttempts       = 3
)

type ScheduleReconciler struct {
	store       StatusStore
	published   PublishedLookup
	publisher   PublishService
	concurrency int
	staleAfter  time.Duration
	moveBackoff time.Duration
	now         func() time.Time
}

func NewScheduleReconciler(cfg config.Config, store StatusStore, published PublishedLookup, publisher PublishService) *ScheduleReconciler {
	concurrency := cfg.Scheduler.PublishConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &ScheduleReconciler{
		store:       store,
		published:   published,
		publisher:   publisher,
		concurrency: concurrency,
		staleAfter:  cfg.Scheduler.StalePublishingAfter,
		moveBackoff: 500 * time.Millisecond,
		now:         time.Now,
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePublished
	outcomeFailed
)

type tally struct {
	mu         sync.Mutex
	processed  int
	successful int
	failed     int
}

func (t *tally) add(o outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case outcomePublished:
		t.processed++
		t.successful++
	case outcomeFailed:
		t.processed++
		t.failed++
	}
}

// Run performs one reconciliation tick. Only a failure to list due posts
// aborts the tick; every per-post failure is recorded on that row.
func (r *ScheduleReconciler) Run(ctx context.Context, manual bool) (*transfer.ReconcileResult, error) {
	now := r.now().UTC()
	slog.Info("reconciliation tick started", "manual", manual)

	if r.staleAfter > 0 {
		released, err := r.store.ReleaseStale(ctx, now.Add(-r.staleAfter))
		if err != nil {
			slog.Warn("failed to release stale publishing rows", "error", err)
		} else if released > 0 {
			slog.Warn("failed posts stuck in publishing, manual retry required", "count", released)
		}
	}

	due, err := r.store.FindDuePosts(ctx, now)
	if err != nil {
		err = fmt.Errorf("fetching due posts: %w", err)
		return &transfer.ReconcileResult{
			Success:   false,
			Timestamp: now.Format(time.RFC3339),
			Summary:   "Reconciliation aborted",
			Error:     err.Error(),
		}, err
	}

	var t tally
	if r.concurrency == 1 {
		for _, post := range due {
			t.add(r.processPost(ctx, post))
		}
	} else {
		var wg sync.WaitGroup
		semaphore := make(chan struct{}, r.concurrency)
		for _, post := range due {
			wg.Add(1)
			semaphore <- struct{}{}
			go func(post *models.ScheduledPost) {
				defer wg.Done()
				defer func() { <-semaphore }()
				t.add(r.processPost(ctx, post))
			}(post)
		}
		wg.Wait()
	}

	result := &transfer.ReconcileResult{
		Success:    true,
		Processed:  t.processed,
		Successful: t.successful,
		Failed:     t.failed,
		Timestamp:  now.Format(time.RFC3339),
		Summary:    fmt.Sprintf("Processed %d posts: %d published, %d failed", t.processed, t.successful, t.failed),
	}
	slog.Info("reconciliation tick finished", "manual", manual, "processed", t.processed, "successful", t.successful, "failed", t.failed)
	return result, nil
}

func (r *ScheduleReconciler) processPost(ctx context.Context, due *models.ScheduledPost) outcome {
	if ctx.Err() != nil {
		return outcomeSkipped
	}

	post, err := r.store.MarkPublishing(ctx, due.ID)
	if err != nil {
		slog.Error("failed to claim post", "post_id", due.ID, "error", err)
		return outcomeSkipped
	}
	if post == nil {
		slog.Info("post already claimed by another pass", "post_id", due.ID)
		return outcomeSkipped
	}

	// A publish already recorded for this row is finished, never sent again.
	existing, err := r.published.GetByScheduledPostID(ctx, post.ID)
	if err != nil {
		r.release(ctx, post, fmt.Errorf("idempotency lookup: %w", err))
		return outcomeSkipped
	}
	if existing != nil {
		bctx, cancel := bookkeepingContext(ctx)
		defer cancel()
		if _, err := r.store.MovePublished(bctx, post.ID, existing); err != nil {
			slog.Error("failed to finish recorded move", "post_id", post.ID, "error", err)
			return outcomeFailed
		}
		return outcomePublished
	}

	req := transfer.PublishRequest{
		PostID:   strconv.FormatInt(post.ID, 10),
		Content:  post.FullText(),
		ImageURL: post.MediaURL,
	}
	owner := &PublishOwner{UserID: post.UserID, ContentHash: r.contentHash(post)}

	resp, err := r.publisher.Publish(ctx, req, owner)
	if errors.Is(err, apperrors.ErrNotAttempted) {
		r.release(ctx, post, err)
		return outcomeSkipped
	}
	if err != nil {
		r.recordFailure(ctx, post, err)
		return outcomeFailed
	}

	published := &models.PublishedPost{
		UserID:      post.UserID,
		Content:     post.Content,
		Hashtags:    post.Hashtags,
		MediaURL:    post.MediaURL,
		ContentHash: owner.ContentHash,
		TweetID:     sql.NullString{String: resp.TweetID, Valid: resp.TweetID != ""},
		TweetURL:    sql.NullString{String: resp.TweetURL, Valid: resp.TweetURL != ""},
		PublishedAt: r.now().UTC(),
	}
	r.finishPublished(ctx, post, published)

	slog.Info("post published", "post_id", post.ID, "tweet_id", resp.TweetID, "media_count", resp.MediaCount)
	return outcomePublished
}

// finishPublished records a publish that the platform accepted. The tick may
// already be cancelled, so the writes run on a detached context. When the
// move cannot be saved the row is failed with the tweet id, so it never goes
// back to the due pool.
func (r *ScheduleReconciler) finishPublished(ctx context.Context, post *models.ScheduledPost, published *models.PublishedPost) {
	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	var err error
	for attempt := 1; attempt <= moveAttempts; attempt++ {
		if _, err = r.store.MovePublished(bctx, post.ID, published); err == nil {
			return
		}
		slog.Warn("failed to record published post", "post_id", post.ID, "attempt", attempt, "error", err)
		if attempt < moveAttempts {
			time.Sleep(r.moveBackoff)
		}
	}

	message := fmt.Sprintf("Published as %s but bookkeeping failed: %s", published.TweetID.String, err.Error())
	if err := r.store.RecordFailure(bctx, post.ID, post.RetryCount, models.PostStatusFailed, message); err != nil {
		// The row stays in publishing until ReleaseStale fails it.
		slog.Error("reconciliation anomaly: published but not recorded",
			"post_id", post.ID, "tweet_id", published.TweetID.String, "error", err)
		return
	}
	slog.Error("reconciliation anomaly: published but move failed, row marked failed",
		"post_id", post.ID, "tweet_id", published.TweetID.String)
}

// release hands a claimed row back to the due pool without spending a retry,
// for publishes that were never sent.
func (r *ScheduleReconciler) release(ctx context.Context, post *models.ScheduledPost, cause error) {
	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	message := "Deferred: " + cause.Error()
	if err := r.store.RecordFailure(bctx, post.ID, post.RetryCount, models.PostStatusScheduled, message); err != nil {
		slog.Error("failed to release claimed post", "post_id", post.ID, "error", err)
		return
	}
	slog.Info("publish deferred", "post_id", post.ID, "reason", cause)
}

func (r *ScheduleReconciler) recordFailure(ctx context.Context, post *models.ScheduledPost, cause error) {
	retryCount := post.RetryCount
	status := models.PostStatusFailed
	var message string

	if errors.Is(cause, apperrors.ErrDuplicateContent) {
		message = apperrors.ErrDuplicateContent.Error()
	} else {
		retryCount = post.RetryCount + 1
		if !apperrors.IsPermanent(cause) && retryCount < post.MaxRetries {
			status = models.PostStatusScheduled
		}
		message = fmt.Sprintf("Attempt %d: %s", retryCount, cause.Error())
	}

	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := r.store.RecordFailure(bctx, post.ID, retryCount, status, message); err != nil {
		slog.Error("failed to record publish failure", "post_id", post.ID, "error", err)
		return
	}
	slog.Info("publish attempt failed", "post_id", post.ID, "retry_count", retryCount, "status", status, "kind", apperrors.KindOf(cause))
}

func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func (r *ScheduleReconciler) contentHash(post *models.ScheduledPost) string {
	if post.ContentHash != "" {
		return post.ContentHash
	}
	return PostFingerprint(post.Content, post.Hashtags)
}
