package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type MetricsStore interface {
	ListForMetrics(ctx context.Context, since time.Time) ([]*models.PublishedPost, error)
	UpdateMetrics(ctx context.Context, id int64, m *transfer.PublicMetrics) error
}

type MetricsSource interface {
	Metrics(ctx context.Context, tweetID string) (*transfer.PublicMetrics, error)
}

type MetricsRefreshJob struct {
	store    MetricsStore
	tw       MetricsSource
	lookback time.Duration
	now      func() time.Time
}

func NewMetricsRefreshJob(store MetricsStore, tw MetricsSource, lookback time.Duration) *MetricsRefreshJob {
	return &MetricsRefreshJob{
		store:    store,
		tw:       tw,
		lookback: lookback,
		now:      time.Now,
	}
}

func (j *MetricsRefreshJob) RefreshMetrics() {
	j.refresh(context.Background())
}

// refresh returns how many rows were updated.
func (j *MetricsRefreshJob) refresh(ctx context.Context) int {
	since := j.now().UTC().Add(-j.lookback)

	posts, err := j.store.ListForMetrics(ctx, since)
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updated int
	)

	concurrencyLimit := 4
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, p := range posts {
		if !p.TweetID.Valid {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(p *models.PublishedPost) {
			defer wg.Done()
			defer func() { <-semaphore }()

			m, err := j.tw.Metrics(ctx, p.TweetID.String)
			if err != nil {
				slog.Info("unable to fetch metrics", "tweet_id", p.TweetID.String, "error", err)
				return
			}
			if err := j.store.UpdateMetrics(ctx, p.ID, m); err != nil {
				slog.Info("unable to save metrics", "published_id", p.ID, "error", err)
				return
			}

			mu.Lock()
			updated++
			mu.Unlock()
		}(p)
	}

	wg.Wait()
	if updated > 0 {
		slog.Info("refreshed engagement metrics", "count", updated)
	}
	return updated
}
