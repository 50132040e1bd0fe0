package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

// PublishOwner identifies whose history the duplicate guard checks against.
type PublishOwner struct {
	UserID      int64
	ContentHash string
}

type PublishService interface {
	Publish(ctx context.Context, req transfer.PublishRequest, owner *PublishOwner) (*transfer.PublishResponse, error)
}

type publishService struct {
	media       MediaService
	tw          TwitterService
	dup         DuplicateService
	windowHours int
}

func NewPublishService(media MediaService, tw TwitterService, dup DuplicateService, windowHours int) PublishService {
	if windowHours <= 0 {
		windowHours = DefaultDuplicateWindowHours
	}
	return &publishService{
		media:       media,
		tw:          tw,
		dup:         dup,
		windowHours: windowHours,
	}
}

// Publish uploads optional media, runs the duplicate guard when owner is set,
// then makes the irreversible publish call. Media failures only drop the media.
// The response is always populated; err carries the typed cause on failure.
func (s *publishService) Publish(ctx context.Context, req transfer.PublishRequest, owner *PublishOwner) (*transfer.PublishResponse, error) {
	if req.Content == "" {
		err := apperrors.NewPlatformError(apperrors.KindValidation, 0, "content is empty")
		return &transfer.PublishResponse{Error: err.Error()}, err
	}

	var mediaIDs []string
	if req.ImageURL != "" {
		mediaID, err := s.media.Upload(ctx, req.ImageURL)
		if errors.Is(err, apperrors.ErrNotAttempted) {
			return &transfer.PublishResponse{Error: err.Error()}, err
		}
		if err != nil {
			slog.Warn("media upload failed, publishing text only", "post_id", req.PostID, "error", err)
		} else {
			mediaIDs = append(mediaIDs, mediaID)
		}
	}

	if owner != nil {
		dup, err := s.dup.IsDuplicate(ctx, owner.UserID, owner.ContentHash, s.windowHours)
		if err != nil {
			err = apperrors.NotAttempted(fmt.Errorf("duplicate check: %w", err))
			return &transfer.PublishResponse{Error: err.Error()}, err
		}
		if dup {
			return &transfer.PublishResponse{Error: apperrors.ErrDuplicateContent.Error()}, apperrors.ErrDuplicateContent
		}
	}

	result, err := s.tw.Publish(ctx, req.Content, mediaIDs)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Info("publish failed", "post_id", req.PostID, "kind", apperrors.KindOf(err), "error", err)
		}
		return &transfer.PublishResponse{Error: err.Error()}, err
	}

	return &transfer.PublishResponse{
		Success:    true,
		TweetID:    result.ID,
		TweetURL:   result.URL,
		MediaCount: len(mediaIDs),
	}, nil
}

// PublishRecorder stores publishes that did not come from a scheduled row.
type PublishRecorder interface {
	Record(ctx context.Context, p *models.PublishedPost) (int64, error)
}

type ImmediatePublishService interface {
	PublishNow(ctx context.Context, userID int64, req transfer.PublishRequest) (*transfer.PublishResponse, error)
}

type immediatePublishService struct {
	publisher PublishService
	recorder  PublishRecorder
	now       func() time.Time
}

func NewImmediatePublishService(publisher PublishService, recorder PublishRecorder) ImmediatePublishService {
	return &immediatePublishService{publisher: publisher, recorder: recorder, now: time.Now}
}

// PublishNow publishes outside any schedule and records the result, so the
// duplicate guard and dedup see it like any scheduled publish.
func (s *immediatePublishService) PublishNow(ctx context.Context, userID int64, req transfer.PublishRequest) (*transfer.PublishResponse, error) {
	content, hashtags := SplitHashtags(req.Content)
	owner := &PublishOwner{UserID: userID, ContentHash: Fingerprint(content, hashtags)}

	resp, err := s.publisher.Publish(ctx, req, owner)
	if err != nil {
		return resp, err
	}

	published := &models.PublishedPost{
		UserID:      userID,
		Content:     content,
		Hashtags:    hashtags,
		MediaURL:    req.ImageURL,
		ContentHash: owner.ContentHash,
		TweetID:     sql.NullString{String: resp.TweetID, Valid: resp.TweetID != ""},
		TweetURL:    sql.NullString{String: resp.TweetURL, Valid: resp.TweetURL != ""},
		PublishedAt: s.now().UTC(),
	}
	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if _, err := s.recorder.Record(bctx, published); err != nil {
		slog.Error("reconciliation anomaly: immediate publish not recorded",
			"user_id", userID, "tweet_id", resp.TweetID, "error", err)
	}

	return resp, nil
}
