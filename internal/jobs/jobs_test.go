package job

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type countingReconciler struct {
	calls int
}

func (c *countingReconciler) Run(ctx context.Context, manual bool) (*transfer.ReconcileResult, error) {
	c.calls++
	return &transfer.ReconcileResult{Success: true}, nil
}

func TestReconcileJobRunsWithoutLocker(t *testing.T) {
	r := &countingReconciler{}
	j := NewReconcileJob(r, nil, 0)

	result, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)

	j.Tick()
	assert.Equal(t, 2, r.calls)
}

type blockingReconciler struct {
	started  chan struct{}
	finished chan struct{}
	deadline bool
}

func (b *blockingReconciler) Run(ctx context.Context, manual bool) (*transfer.ReconcileResult, error) {
	_, b.deadline = ctx.Deadline()
	close(b.started)
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	close(b.finished)
	return &transfer.ReconcileResult{Success: true}, nil
}

func TestReconcileJobStopWaitsForRunningTick(t *testing.T) {
	r := &blockingReconciler{started: make(chan struct{}), finished: make(chan struct{})}
	j := NewReconcileJob(r, nil, time.Second)

	go j.Tick()
	<-r.started
	assert.False(t, r.deadline, "a tick is not bounded by the lease")

	// A tick firing while one is running is skipped.
	j.Tick()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, j.Stop(ctx))

	select {
	case <-r.finished:
	default:
		t.Fatal("Stop returned before the running tick finished")
	}
}

func TestReconcileJobDoesNotTickAfterStop(t *testing.T) {
	r := &countingReconciler{}
	j := NewReconcileJob(r, nil, 0)

	require.NoError(t, j.Stop(context.Background()))
	j.Tick()
	assert.Equal(t, 0, r.calls)
}

type metricsStore struct {
	mu      sync.Mutex
	posts   []*models.PublishedPost
	since   time.Time
	updated map[int64]*transfer.PublicMetrics
}

func (m *metricsStore) ListForMetrics(ctx context.Context, since time.Time) ([]*models.PublishedPost, error) {
	m.since = since
	return m.posts, nil
}

func (m *metricsStore) UpdateMetrics(ctx context.Context, id int64, pm *transfer.PublicMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated[id] = pm
	return nil
}

type metricsSource struct{}

func (metricsSource) Metrics(ctx context.Context, tweetID string) (*transfer.PublicMetrics, error) {
	if tweetID == "bad" {
		return nil, errors.New("not found")
	}
	return &transfer.PublicMetrics{LikeCount: int64(len(tweetID))}, nil
}

func TestMetricsRefresh(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store := &metricsStore{
		updated: make(map[int64]*transfer.PublicMetrics),
		posts: []*models.PublishedPost{
			{ID: 1, TweetID: sql.NullString{String: "111", Valid: true}},
			{ID: 2, TweetID: sql.NullString{String: "bad", Valid: true}},
			{ID: 3},
			{ID: 4, TweetID: sql.NullString{String: "4444", Valid: true}},
		},
	}
	j := NewMetricsRefreshJob(store, metricsSource{}, 7*24*time.Hour)
	j.now = func() time.Time { return now }

	n := j.refresh(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, now.Add(-7*24*time.Hour), store.since)
	assert.Equal(t, int64(3), store.updated[1].LikeCount)
	assert.Equal(t, int64(4), store.updated[4].LikeCount)
	assert.NotContains(t, store.updated, int64(2))
}
