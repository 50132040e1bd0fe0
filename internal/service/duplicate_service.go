package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

const DefaultDuplicateWindowHours = 24

type DuplicateService interface {
	IsDuplicate(ctx context.Context, userID int64, fingerprint string, windowHours int) (bool, error)
	Deduplicate(ctx context.Context) (*transfer.DedupResult, error)
}

type duplicateService struct {
	pp  repository.PublishedPostRepository
	now func() time.Time
}

func NewDuplicateService(pp repository.PublishedPostRepository) DuplicateService {
	return &duplicateService{pp: pp, now: time.Now}
}

func (s *duplicateService) IsDuplicate(ctx context.Context, userID int64, fingerprint string, windowHours int) (bool, error) {
	if windowHours <= 0 {
		windowHours = DefaultDuplicateWindowHours
	}
	since := s.now().UTC().Add(-time.Duration(windowHours) * time.Hour)

	exists, err := s.pp.ExistsSince(ctx, userID, fingerprint, since)
	if err != nil {
		return false, fmt.Errorf("checking duplicate content: %w", err)
	}
	return exists, nil
}

// Deduplicate keeps one published row per (user, fingerprint) and deletes the rest.
func (s *duplicateService) Deduplicate(ctx context.Context) (*transfer.DedupResult, error) {
	posts, err := s.pp.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing published posts: %w", err)
	}

	type groupKey struct {
		userID      int64
		fingerprint string
	}
	groups := make(map[groupKey][]*models.PublishedPost)
	for _, p := range posts {
		fp := p.ContentHash
		if fp == "" {
			fp = PostFingerprint(p.Content, p.Hashtags)
		}
		k := groupKey{userID: p.UserID, fingerprint: fp}
		groups[k] = append(groups[k], p)
	}

	result := &transfer.DedupResult{}
	var doomed []int64
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		result.Groups++
		sort.SliceStable(members, func(i, j int) bool {
			return betterSurvivor(members[i], members[j])
		})
		for _, p := range members[1:] {
			doomed = append(doomed, p.ID)
		}
	}

	if len(doomed) == 0 {
		return result, nil
	}

	sort.Slice(doomed, func(i, j int) bool { return doomed[i] < doomed[j] })
	deleted, err := s.pp.DeleteByIDs(ctx, doomed)
	if err != nil {
		return nil, fmt.Errorf("deleting duplicate published posts: %w", err)
	}
	result.Deleted = int(deleted)

	slog.Info("deduplicated published posts", "groups", result.Groups, "deleted", result.Deleted)
	return result, nil
}

// betterSurvivor orders a ahead of b: rows with an external id and url first,
// then the most recently published, then the highest id.
func betterSurvivor(a, b *models.PublishedPost) bool {
	if ar, br := a.HasExternalRef(), b.HasExternalRef(); ar != br {
		return ar
	}
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}
	return a.ID > b.ID
}
