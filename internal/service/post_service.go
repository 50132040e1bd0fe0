package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

const (
	maxPostLength    = 280
	maxRetriesCap    = 10
	scheduleLayout   = "2006-01-02T15:04"
	maxBulkPostCount = 500
)

var allowedMediaTypes = map[string]struct{}{
	"jpg": {}, "png": {}, "gif": {}, "webp": {}, "mp4": {},
}

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, file *multipart.FileHeader) (*models.ScheduledPost, error)
	BulkCreate(ctx context.Context, userID int64, posts []transfer.PostCreation) ([]int64, error)
	List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.ScheduledPost, error)
	Update(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) (*models.ScheduledPost, error)
	Remove(ctx context.Context, userID, postID int64) error
	Retry(ctx context.Context, userID, postID int64) error
	ListPublished(ctx context.Context, userID int64) ([]*models.PublishedPost, error)
}

type postService struct {
	db                *sql.DB
	sp                repository.ScheduledPostRepository
	pp                repository.PublishedPostRepository
	storage           ObjectStorage
	defaultMaxRetries int
}

func NewPostService(
	db *sql.DB,
	sp repository.ScheduledPostRepository,
	pp repository.PublishedPostRepository,
	storage ObjectStorage,
	defaultMaxRetries int) PostService {
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = models.DefaultMaxRetries
	}
	return &postService{
		db:                db,
		sp:                sp,
		pp:                pp,
		storage:           storage,
		defaultMaxRetries: defaultMaxRetries,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, file *multipart.FileHeader) (*models.ScheduledPost, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return nil, err
	}

	if file != nil {
		mediaURL, err := s.saveFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("error processing file: %w", err)
		}
		pc.MediaURL = mediaURL
	}

	post, err := s.buildPost(userID, pc)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	id, err := s.sp.Create(ctx, nil, post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	post.ID = id

	return post, nil
}

// BulkCreate validates every row before inserting any; the inserts share one transaction.
func (s *postService) BulkCreate(ctx context.Context, userID int64, posts []transfer.PostCreation) (ids []int64, err error) {
	if len(posts) == 0 {
		return nil, errors.New("no posts provided")
	}
	if len(posts) > maxBulkPostCount {
		return nil, fmt.Errorf("at most %d posts can be imported at once", maxBulkPostCount)
	}

	built := make([]*models.ScheduledPost, 0, len(posts))
	for i := range posts {
		post, err := s.buildPost(userID, &posts[i])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		built = append(built, post)
	}

	var tx *sql.Tx
	if s.db != nil {
		tx, err = s.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to start transaction: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			} else if err != nil {
				tx.Rollback()
			}
		}()
	}

	for i, post := range built {
		id, err := s.sp.Create(ctx, tx, post)
		if err != nil {
			return nil, fmt.Errorf("error creating post %d: %w", i+1, err)
		}
		ids = append(ids, id)
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
	}

	return ids, nil
}

func (s *postService) buildPost(userID int64, pc *transfer.PostCreation) (*models.ScheduledPost, error) {
	if userID == 0 {
		return nil, errors.New("user is not valid")
	}

	scheduledFor, err := parseScheduleTime(pc.ScheduledFor)
	if err != nil {
		return nil, err
	}

	maxRetries := pc.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}
	if maxRetries > maxRetriesCap {
		return nil, fmt.Errorf("max_retries cannot exceed %d", maxRetriesCap)
	}

	post := &models.ScheduledPost{
		UserID:       userID,
		Content:      pc.Content,
		Hashtags:     NormalizeContent(pc.Hashtags),
		MediaURL:     pc.MediaURL,
		ScheduledFor: scheduledFor,
		Status:       models.PostStatusScheduled,
		MaxRetries:   maxRetries,
	}
	if err := validateText(post); err != nil {
		return nil, err
	}
	post.ContentHash = PostFingerprint(post.Content, post.Hashtags)

	return post, nil
}

func validateText(post *models.ScheduledPost) error {
	if NormalizeContent(post.Content) == "" {
		return errors.New("content cannot be empty")
	}
	if n := utf8.RuneCountInString(post.FullText()); n > maxPostLength {
		return fmt.Errorf("post is %d characters, the limit is %d", n, maxPostLength)
	}
	return nil
}

// parseScheduleTime accepts RFC 3339 or the form's minute layout, read as UTC.
func parseScheduleTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("scheduled time is required")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(scheduleLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scheduled time format: %w", err)
	}
	return t.UTC(), nil
}

func (s *postService) saveFile(ctx context.Context, file *multipart.FileHeader) (string, error) {
	if s.storage == nil {
		return "", errors.New("media storage is not configured")
	}

	f, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	fileBytes, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("error reading file content: %w", err)
	}

	fileType, err := filetype.Match(fileBytes)
	if err != nil || fileType == types.Unknown {
		return "", fmt.Errorf("unsupported file type")
	}
	if _, ok := allowedMediaTypes[fileType.Extension]; !ok {
		return "", fmt.Errorf("file type %s is not allowed", fileType.Extension)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return s.storage.Upload(ctx, id+"."+fileType.Extension, fileBytes, fileType.MIME.Value)
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.ScheduledPost, error) {
	if err := s.checkOwner(ctx, postID, userID); err != nil {
		return nil, err
	}

	post, err := s.sp.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info: %w", err)
	}
	if post == nil {
		return nil, apperrors.ErrPostNotFound
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	posts, err := s.sp.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

// Update edits content or timing. Only rows still in scheduled status can change.
func (s *postService) Update(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) (*models.ScheduledPost, error) {
	if pu == nil {
		return nil, errors.New("post update data is nil")
	}

	post, err := s.PostInfo(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusScheduled {
		return nil, apperrors.ErrPostNotEditable
	}

	if pu.Content != nil {
		post.Content = *pu.Content
	}
	if pu.Hashtags != nil {
		post.Hashtags = NormalizeContent(*pu.Hashtags)
	}
	if pu.MediaURL != nil {
		post.MediaURL = *pu.MediaURL
	}
	if pu.ScheduledFor != nil {
		t, err := parseScheduleTime(*pu.ScheduledFor)
		if err != nil {
			return nil, err
		}
		post.ScheduledFor = t
	}
	if err := validateText(post); err != nil {
		return nil, err
	}
	post.ContentHash = PostFingerprint(post.Content, post.Hashtags)

	updated, err := s.sp.UpdateScheduled(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("error updating post: %w", err)
	}
	if !updated {
		return nil, apperrors.ErrPostNotEditable
	}
	return post, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	if err := s.checkOwner(ctx, postID, userID); err != nil {
		return err
	}

	if err := s.sp.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}

// Retry resets a failed or exhausted post so the next tick picks it up.
func (s *postService) Retry(ctx context.Context, userID, postID int64) error {
	if err := s.checkOwner(ctx, postID, userID); err != nil {
		return err
	}

	reset, err := s.sp.ResetForRetry(ctx, postID)
	if err != nil {
		return fmt.Errorf("error resetting post: %w", err)
	}
	if !reset {
		return apperrors.ErrPostNotRetryable
	}
	return nil
}

func (s *postService) ListPublished(ctx context.Context, userID int64) ([]*models.PublishedPost, error) {
	posts, err := s.pp.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing published posts: %w", err)
	}
	return posts, nil
}

func (s *postService) checkOwner(ctx context.Context, postID, userID int64) error {
	if userID == 0 {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return err
	}
	if postID == 0 {
		err := errors.New("post id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sp.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		slog.Info(apperrors.ErrPostNotFound.Error())
		return apperrors.ErrPostNotFound
	}
	return nil
}
