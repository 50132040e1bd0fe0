package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type TwitterService interface {
	Publish(ctx context.Context, text string, mediaIDs []string) (*transfer.TweetResult, error)
	Metrics(ctx context.Context, tweetID string) (*transfer.PublicMetrics, error)
}

type twitterService struct {
	c *PlatformClient
}

func NewTwitterService(c *PlatformClient) TwitterService {
	return &twitterService{c: c}
}

// Publish creates a post. It never retries; that is the reconciler's call.
func (s *twitterService) Publish(ctx context.Context, text string, mediaIDs []string) (*transfer.TweetResult, error) {
	payload := transfer.TweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &transfer.TweetMedia{MediaIDs: mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, err)
	}

	resp, err := s.c.do(ctx, http.MethodPost, s.c.apiBaseURL+"/2/tweets", "application/json", body)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, classifyFailure(resp.StatusCode, resp.Body)
	}

	var created transfer.TweetResponse
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, fmt.Errorf("decoding publish response: %w", err))
	}
	if created.Data.ID == "" {
		return nil, apperrors.Wrap(apperrors.KindTransport, errors.New("publish response carried no post id"))
	}

	return &transfer.TweetResult{
		ID:  created.Data.ID,
		URL: s.PostURL(created.Data.ID),
	}, nil
}

func (s *twitterService) PostURL(id string) string {
	return s.c.postURLBase + "/" + id
}

func (s *twitterService) Metrics(ctx context.Context, tweetID string) (*transfer.PublicMetrics, error) {
	endpoint := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=public_metrics", s.c.apiBaseURL, url.PathEscape(tweetID))

	resp, err := s.c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, classifyFailure(resp.StatusCode, resp.Body)
	}

	var out transfer.TweetMetricsResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, fmt.Errorf("decoding metrics response: %w", err))
	}
	return &out.Data.PublicMetrics, nil
}
