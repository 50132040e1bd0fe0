package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/transfer"
	"github.com/maheshrc27/tweetflow/pkg/oauth1"
)

const defaultHTTPTimeout = 30 * time.Second

// PlatformClient sends OAuth1-signed requests to the external platform.
type PlatformClient struct {
	signer  *oauth1.Signer
	http    *http.Client
	limiter *rate.Limiter

	apiBaseURL    string
	uploadBaseURL string
	postURLBase   string
}

func NewPlatformClient(cfg config.Config, signer *oauth1.Signer) *PlatformClient {
	limit := rate.Inf
	burst := 1
	if cfg.Twitter.RatePerMinute > 0 {
		limit = rate.Limit(float64(cfg.Twitter.RatePerMinute) / 60)
		burst = cfg.Twitter.RatePerMinute
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &PlatformClient{
		signer:        signer,
		http:          &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(limit, burst),
		apiBaseURL:    strings.TrimRight(cfg.Twitter.APIBaseURL, "/"),
		uploadBaseURL: strings.TrimRight(cfg.Twitter.UploadBaseURL, "/"),
		postURLBase:   strings.TrimRight(cfg.Twitter.PostURLBase, "/"),
	}
}

// HTTPClient is the timeout-bounded client shared with unsigned fetches.
func (c *PlatformClient) HTTPClient() *http.Client {
	return c.http
}

type platformResponse struct {
	StatusCode int
	Body       []byte
}

func (c *PlatformClient) do(ctx context.Context, method, url, contentType string, body []byte) (*platformResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NotAttempted(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NotAttempted(err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	// Once paced, the request runs to completion under the client timeout. A
	// cancelled tick must not cut off a call the platform may already have seen.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), method, url, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, err)
	}

	auth, err := c.signer.Sign(method, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, err)
	}
	req.Header.Set("Authorization", auth)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, apperrors.Wrap(apperrors.KindTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, fmt.Errorf("reading response body: %w", err))
	}

	return &platformResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// classifyFailure reads the platform's structured error payload to pick a kind.
func classifyFailure(status int, body []byte) error {
	kind := apperrors.KindForStatus(status)

	var payload transfer.TwitterErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		if strings.Contains(strings.ToLower(payload.Detail), "duplicate content") {
			kind = apperrors.KindDuplicate
		}
		for _, e := range payload.Errors {
			// 187: status is a duplicate.
			if e.Code == 187 {
				kind = apperrors.KindDuplicate
			}
		}
	}

	return apperrors.NewPlatformError(kind, status, string(body))
}
