package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

// memScheduled is an in-memory ScheduledPostRepository with the same
// conditional-update semantics as the SQL one.
type memScheduled struct {
	mu        sync.Mutex
	rows      map[int64]*models.ScheduledPost
	nextID    int64
	published *memPublished
	now       func() time.Time

	findErr   error
	moveErr   error
	recordErr error
	moveCalls int
}

func newMemScheduled(published *memPublished) *memScheduled {
	return &memScheduled{
		rows:      make(map[int64]*models.ScheduledPost),
		published: published,
		now:       time.Now,
	}
}

func (m *memScheduled) add(p *models.ScheduledPost) *models.ScheduledPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	if p.Status == "" {
		p.Status = models.PostStatusScheduled
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = models.DefaultMaxRetries
	}
	p.UpdatedAt = m.now()
	cp := *p
	m.rows[p.ID] = &cp
	return p
}

func (m *memScheduled) get(id int64) *models.ScheduledPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *memScheduled) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	return m.add(post).ID, nil
}

func (m *memScheduled) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	return m.get(id), nil
}

func (m *memScheduled) GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ScheduledPost
	for _, p := range m.rows {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memScheduled) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[postID]
	return ok && p.UserID == userID, nil
}

func (m *memScheduled) UpdateScheduled(ctx context.Context, post *models.ScheduledPost) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[post.ID]
	if !ok || p.Status != models.PostStatusScheduled {
		return false, nil
	}
	p.Content = post.Content
	p.Hashtags = post.Hashtags
	p.MediaURL = post.MediaURL
	p.ScheduledFor = post.ScheduledFor
	p.ContentHash = post.ContentHash
	p.UpdatedAt = m.now()
	return true, nil
}

func (m *memScheduled) Remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memScheduled) FindDuePosts(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ScheduledPost
	for _, p := range m.rows {
		if p.Status == models.PostStatusScheduled && !p.ScheduledFor.After(now) && p.RetryCount < p.MaxRetries {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memScheduled) MarkPublishing(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Status != models.PostStatusScheduled {
		return nil, nil
	}
	p.Status = models.PostStatusPublishing
	p.UpdatedAt = m.now()
	cp := *p
	return &cp, nil
}

func (m *memScheduled) MovePublished(ctx context.Context, scheduledID int64, published *models.PublishedPost) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moveCalls++
	if m.moveErr != nil {
		return 0, m.moveErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id := m.published.insertOnce(scheduledID, published)
	delete(m.rows, scheduledID)
	return id, nil
}

func (m *memScheduled) RecordFailure(ctx context.Context, id int64, retryCount int, status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := m.rows[id]
	if !ok {
		return errors.New("no such post")
	}
	p.RetryCount = retryCount
	p.Status = status
	p.ErrorMessage = sql.NullString{String: message, Valid: true}
	p.UpdatedAt = m.now()
	return nil
}

func (m *memScheduled) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	exhausted := p.Status == models.PostStatusScheduled && p.RetryCount >= p.MaxRetries
	if p.Status != models.PostStatusFailed && !exhausted {
		return false, nil
	}
	p.Status = models.PostStatusScheduled
	p.RetryCount = 0
	p.ErrorMessage = sql.NullString{}
	return true, nil
}

func (m *memScheduled) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.rows {
		if p.Status == models.PostStatusPublishing && p.UpdatedAt.Before(olderThan) {
			p.Status = models.PostStatusFailed
			p.ErrorMessage = sql.NullString{String: models.StalePublishMessage, Valid: true}
			p.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

type memPublished struct {
	mu     sync.Mutex
	rows   []*models.PublishedPost
	nextID int64

	deleted []int64
	updated map[int64]*transfer.PublicMetrics
}

func newMemPublished() *memPublished {
	return &memPublished{updated: make(map[int64]*transfer.PublicMetrics)}
}

func (m *memPublished) add(p *models.PublishedPost) *models.PublishedPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.rows = append(m.rows, p)
	return p
}

func (m *memPublished) insertOnce(scheduledID int64, p *models.PublishedPost) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ScheduledPostID.Valid && r.ScheduledPostID.Int64 == scheduledID {
			return r.ID
		}
	}
	m.nextID++
	p.ID = m.nextID
	p.ScheduledPostID = sql.NullInt64{Int64: scheduledID, Valid: true}
	m.rows = append(m.rows, p)
	return p.ID
}

func (m *memPublished) Record(ctx context.Context, p *models.PublishedPost) (int64, error) {
	return m.add(p).ID, nil
}

func (m *memPublished) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memPublished) GetByUserID(ctx context.Context, userID int64) ([]*models.PublishedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PublishedPost
	for _, p := range m.rows {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPublished) GetByScheduledPostID(ctx context.Context, scheduledID int64) (*models.PublishedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.ScheduledPostID.Valid && p.ScheduledPostID.Int64 == scheduledID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memPublished) ExistsSince(ctx context.Context, userID int64, contentHash string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.UserID == userID && p.ContentHash == contentHash && !p.PublishedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPublished) ListAll(ctx context.Context) ([]*models.PublishedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.PublishedPost, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memPublished) ListForMetrics(ctx context.Context, since time.Time) ([]*models.PublishedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PublishedPost
	for _, p := range m.rows {
		if p.TweetID.Valid && !p.PublishedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPublished) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doomed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	var kept []*models.PublishedPost
	var n int64
	for _, p := range m.rows {
		if doomed[p.ID] {
			m.deleted = append(m.deleted, p.ID)
			n++
			continue
		}
		kept = append(kept, p)
	}
	m.rows = kept
	return n, nil
}

func (m *memPublished) UpdateMetrics(ctx context.Context, id int64, metrics *transfer.PublicMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated[id] = metrics
	return nil
}

// stubTwitter records publish calls and answers from publishFn.
type stubTwitter struct {
	mu        sync.Mutex
	calls     []string
	mediaIDs  [][]string
	publishFn func(text string) (*transfer.TweetResult, error)
}

func (s *stubTwitter) Publish(ctx context.Context, text string, mediaIDs []string) (*transfer.TweetResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mediaIDs = append(s.mediaIDs, mediaIDs)
	n := len(s.calls)
	s.mu.Unlock()

	if s.publishFn != nil {
		return s.publishFn(text)
	}
	id := "tw-" + strconv.Itoa(n)
	return &transfer.TweetResult{ID: id, URL: "https://twitter.com/i/web/status/" + id}, nil
}

func (s *stubTwitter) Metrics(ctx context.Context, tweetID string) (*transfer.PublicMetrics, error) {
	return &transfer.PublicMetrics{}, nil
}

func (s *stubTwitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubMedia struct {
	id  string
	err error
}

func (s *stubMedia) Upload(ctx context.Context, mediaURL string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.id, nil
}

type memStorage struct {
	keys []string
}

func (m *memStorage) Upload(ctx context.Context, key string, file []byte, fileType string) (string, error) {
	m.keys = append(m.keys, key)
	return "https://media.example.com/" + key, nil
}
