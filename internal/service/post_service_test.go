package service

import (
	"bytes"
	"context"
	"database/sql"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

func newPostFixture() (PostService, *memScheduled, *memPublished, *memStorage) {
	pp := newMemPublished()
	sp := newMemScheduled(pp)
	storage := &memStorage{}
	return NewPostService(nil, sp, pp, storage, 3), sp, pp, storage
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["file"][0]
}

func TestCreatePost(t *testing.T) {
	svc, sp, _, _ := newPostFixture()

	post, err := svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Content:      "Release notes are out",
		Hashtags:     "  #go   #release ",
		ScheduledFor: "2030-01-02T15:04:05+02:00",
	}, nil)
	require.NoError(t, err)

	assert.NotZero(t, post.ID)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	assert.Equal(t, "#go #release", post.Hashtags)
	assert.Equal(t, 3, post.MaxRetries)
	assert.Equal(t, time.Date(2030, 1, 2, 13, 4, 5, 0, time.UTC), post.ScheduledFor)
	assert.Equal(t, Fingerprint("Release notes are out", "#go #release"), post.ContentHash)
	assert.NotNil(t, sp.get(post.ID))
}

func TestCreatePostAcceptsFormLayout(t *testing.T) {
	svc, _, _, _ := newPostFixture()

	post, err := svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Content:      "x",
		ScheduledFor: "2030-06-01T09:30",
		MaxRetries:   5,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 1, 9, 30, 0, 0, time.UTC), post.ScheduledFor)
	assert.Equal(t, 5, post.MaxRetries)
}

func TestCreatePostValidation(t *testing.T) {
	tests := []struct {
		name string
		pc   transfer.PostCreation
	}{
		{"empty content", transfer.PostCreation{Content: "   ", ScheduledFor: "2030-01-01T00:00"}},
		{"too long", transfer.PostCreation{Content: strings.Repeat("é", 281), ScheduledFor: "2030-01-01T00:00"}},
		{"hashtags push over limit", transfer.PostCreation{Content: strings.Repeat("a", 275), Hashtags: "#golang", ScheduledFor: "2030-01-01T00:00"}},
		{"missing time", transfer.PostCreation{Content: "x"}},
		{"bad time", transfer.PostCreation{Content: "x", ScheduledFor: "tomorrow"}},
		{"too many retries", transfer.PostCreation{Content: "x", ScheduledFor: "2030-01-01T00:00", MaxRetries: 11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, _ := newPostFixture()
			pc := tt.pc
			_, err := svc.CreatePost(context.Background(), 7, &pc, nil)
			assert.Error(t, err)
		})
	}
}

func TestCreatePostAtLengthLimit(t *testing.T) {
	svc, _, _, _ := newPostFixture()
	_, err := svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Content:      strings.Repeat("é", 280),
		ScheduledFor: "2030-01-01T00:00",
	}, nil)
	assert.NoError(t, err)
}

func TestCreatePostStoresMedia(t *testing.T) {
	svc, _, _, storage := newPostFixture()

	post, err := svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Content:      "with image",
		ScheduledFor: "2030-01-01T00:00",
	}, fileHeader(t, "pic.png", pngHeader))
	require.NoError(t, err)

	require.Len(t, storage.keys, 1)
	assert.True(t, strings.HasSuffix(storage.keys[0], ".png"))
	assert.Equal(t, "https://media.example.com/"+storage.keys[0], post.MediaURL)
}

func TestCreatePostRejectsUnknownFile(t *testing.T) {
	svc, _, _, storage := newPostFixture()

	_, err := svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Content:      "with text file",
		ScheduledFor: "2030-01-01T00:00",
	}, fileHeader(t, "notes.txt", []byte("just some notes")))
	require.Error(t, err)
	assert.Empty(t, storage.keys)
}

func TestBulkCreateIsAllOrNothing(t *testing.T) {
	svc, sp, _, _ := newPostFixture()

	ids, err := svc.BulkCreate(context.Background(), 7, []transfer.PostCreation{
		{Content: "one", ScheduledFor: "2030-01-01T00:00"},
		{Content: "two", ScheduledFor: "2030-01-01T01:00"},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = svc.BulkCreate(context.Background(), 7, []transfer.PostCreation{
		{Content: "three", ScheduledFor: "2030-01-01T00:00"},
		{Content: "", ScheduledFor: "2030-01-01T01:00"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	posts, _ := sp.GetByUserID(context.Background(), 7)
	assert.Len(t, posts, 2)

	_, err = svc.BulkCreate(context.Background(), 7, nil)
	assert.Error(t, err)
}

func TestUpdatePost(t *testing.T) {
	svc, sp, _, _ := newPostFixture()
	post := sp.add(&models.ScheduledPost{UserID: 7, Content: "draft", ScheduledFor: time.Now().Add(time.Hour)})

	content := "final   copy"
	when := "2031-02-03T04:05"
	updated, err := svc.Update(context.Background(), 7, post.ID, &transfer.PostUpdate{Content: &content, ScheduledFor: &when})
	require.NoError(t, err)

	assert.Equal(t, "final   copy", updated.Content)
	assert.Equal(t, Fingerprint("final copy", ""), updated.ContentHash)
	assert.Equal(t, time.Date(2031, 2, 3, 4, 5, 0, 0, time.UTC), sp.get(post.ID).ScheduledFor)
}

func TestUpdatePostRejectsNonScheduled(t *testing.T) {
	svc, sp, _, _ := newPostFixture()
	post := sp.add(&models.ScheduledPost{UserID: 7, Content: "gone", Status: models.PostStatusFailed})

	content := "edit"
	_, err := svc.Update(context.Background(), 7, post.ID, &transfer.PostUpdate{Content: &content})
	assert.ErrorIs(t, err, apperrors.ErrPostNotEditable)
}

func TestPostOwnership(t *testing.T) {
	svc, sp, _, _ := newPostFixture()
	post := sp.add(&models.ScheduledPost{UserID: 7, Content: "mine"})

	_, err := svc.PostInfo(context.Background(), post.ID, 8)
	assert.ErrorIs(t, err, apperrors.ErrPostNotFound)

	assert.ErrorIs(t, svc.Remove(context.Background(), 8, post.ID), apperrors.ErrPostNotFound)
	assert.NotNil(t, sp.get(post.ID))

	require.NoError(t, svc.Remove(context.Background(), 7, post.ID))
	assert.Nil(t, sp.get(post.ID))
}

func TestRetryPost(t *testing.T) {
	svc, sp, _, _ := newPostFixture()
	failed := sp.add(&models.ScheduledPost{
		UserID:       7,
		Content:      "try again",
		Status:       models.PostStatusFailed,
		RetryCount:   3,
		ErrorMessage: sql.NullString{String: "Attempt 3: boom", Valid: true},
	})
	pending := sp.add(&models.ScheduledPost{UserID: 7, Content: "pending"})

	require.NoError(t, svc.Retry(context.Background(), 7, failed.ID))
	row := sp.get(failed.ID)
	assert.Equal(t, models.PostStatusScheduled, row.Status)
	assert.Equal(t, 0, row.RetryCount)
	assert.False(t, row.ErrorMessage.Valid)

	assert.ErrorIs(t, svc.Retry(context.Background(), 7, pending.ID), apperrors.ErrPostNotRetryable)
}

func TestListPublished(t *testing.T) {
	svc, _, pp, _ := newPostFixture()
	pp.add(&models.PublishedPost{UserID: 7, Content: "a"})
	pp.add(&models.PublishedPost{UserID: 8, Content: "b"})

	posts, err := svc.ListPublished(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "a", posts[0].Content)
}
