package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/transfer"
	"github.com/maheshrc27/tweetflow/pkg/oauth1"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestClient(t *testing.T, baseURL string) *PlatformClient {
	t.Helper()
	signer, err := oauth1.NewSigner(oauth1.Credentials{
		ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessTokenSecret: "ats",
	})
	require.NoError(t, err)

	return NewPlatformClient(config.Config{
		HTTPTimeout: 5 * time.Second,
		Twitter: config.Twitter{
			APIBaseURL:    baseURL,
			UploadBaseURL: baseURL + "/",
			PostURLBase:   "https://twitter.com/i/web/status/",
		},
	}, signer)
}

func TestPublishSendsTextAndMedia(t *testing.T) {
	var got transfer.TweetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"data":{"id":"123","text":"hi"}}`)
	}))
	defer srv.Close()

	tw := NewTwitterService(newTestClient(t, srv.URL))
	res, err := tw.Publish(context.Background(), "hi", []string{"m1", "m2"})
	require.NoError(t, err)

	assert.Equal(t, "123", res.ID)
	assert.Equal(t, "https://twitter.com/i/web/status/123", res.URL)
	assert.Equal(t, "hi", got.Text)
	require.NotNil(t, got.Media)
	assert.Equal(t, []string{"m1", "m2"}, got.Media.MediaIDs)
}

func TestPublishOmitsEmptyMedia(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		io.WriteString(w, `{"data":{"id":"9"}}`)
	}))
	defer srv.Close()

	_, err := NewTwitterService(newTestClient(t, srv.URL)).Publish(context.Background(), "text only", nil)
	require.NoError(t, err)
	assert.NotContains(t, raw, "media")
}

func TestPublishFailureKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      apperrors.ErrorKind
		permanent bool
	}{
		{"unauthorized", 401, `{"title":"Unauthorized","status":401}`, apperrors.KindAuth, true},
		{"forbidden", 403, `{"title":"Forbidden","detail":"not permitted"}`, apperrors.KindForbidden, true},
		{"duplicate detail", 403, `{"detail":"You are not allowed to create a Tweet with duplicate content."}`, apperrors.KindDuplicate, true},
		{"duplicate code", 403, `{"errors":[{"code":187,"message":"Status is a duplicate."}]}`, apperrors.KindDuplicate, true},
		{"rate limited", 429, `{"title":"Too Many Requests"}`, apperrors.KindRateLimited, false},
		{"validation", 400, `{"title":"Invalid Request"}`, apperrors.KindValidation, true},
		{"server error", 503, `over capacity`, apperrors.KindTransport, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewTwitterService(newTestClient(t, srv.URL)).Publish(context.Background(), "x", nil)
			require.Error(t, err)

			var pe *apperrors.PlatformError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Contains(t, err.Error(), tt.body)
			assert.Equal(t, tt.permanent, apperrors.IsPermanent(err))
		})
	}
}

func TestPublishRejectsResponseWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	_, err := NewTwitterService(newTestClient(t, srv.URL)).Publish(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
}

func TestPublishTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewTwitterService(newTestClient(t, url)).Publish(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
	assert.False(t, apperrors.IsPermanent(err))
}

func TestMetricsReadsPublicMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/2/tweets/555", r.URL.Path)
		assert.Equal(t, "public_metrics", r.URL.Query().Get("tweet.fields"))
		io.WriteString(w, `{"data":{"id":"555","public_metrics":{"retweet_count":2,"reply_count":1,"like_count":10,"quote_count":0,"impression_count":400}}}`)
	}))
	defer srv.Close()

	m, err := NewTwitterService(newTestClient(t, srv.URL)).Metrics(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.LikeCount)
	assert.Equal(t, int64(2), m.RetweetCount)
	assert.Equal(t, int64(1), m.ReplyCount)
	assert.Equal(t, int64(400), m.ImpressionCount)
}

func TestPublishPacedOutIsNotAttempted(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"data":{"id":"1","text":"hi"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.limiter = rate.NewLimiter(rate.Every(time.Minute), 1)
	tw := NewTwitterService(client)

	_, err := tw.Publish(context.Background(), "first", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = tw.Publish(ctx, "second", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotAttempted)
	assert.False(t, apperrors.IsPermanent(err))
	assert.Equal(t, 1, hits)
}
