package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

const (
	defaultMediaType = "image/jpeg"
	maxMediaBytes    = 15 << 20
)

type MediaService interface {
	Upload(ctx context.Context, mediaURL string) (string, error)
}

type mediaService struct {
	c        *PlatformClient
	maxBytes int64
}

func NewMediaService(c *PlatformClient) MediaService {
	return &mediaService{c: c, maxBytes: maxMediaBytes}
}

// Upload re-hosts the asset at mediaURL on the platform and returns its media id.
func (s *mediaService) Upload(ctx context.Context, mediaURL string) (string, error) {
	data, contentType, err := s.fetch(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="media"; filename="media"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindMediaUpload, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", apperrors.Wrap(apperrors.KindMediaUpload, err)
	}
	if err := w.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.KindMediaUpload, err)
	}

	resp, err := s.c.do(ctx, http.MethodPost, s.c.uploadBaseURL+"/1.1/media/upload.json", w.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindMediaUpload, err)
	}
	if !isSuccess(resp.StatusCode) {
		return "", apperrors.NewPlatformError(apperrors.KindMediaUpload, resp.StatusCode, string(resp.Body))
	}

	var uploaded transfer.MediaUploadResponse
	if err := json.Unmarshal(resp.Body, &uploaded); err != nil {
		return "", apperrors.Wrap(apperrors.KindMediaUpload, fmt.Errorf("decoding upload response: %w", err))
	}
	if uploaded.MediaIDString == "" {
		return "", apperrors.Wrap(apperrors.KindMediaUpload, errors.New("upload response carried no media id"))
	}

	return uploaded.MediaIDString, nil
}

func (s *mediaService) fetch(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindMediaFetch, err)
	}

	resp, err := s.c.HTTPClient().Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, "", apperrors.Wrap(apperrors.KindMediaFetch, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, "", apperrors.NewPlatformError(apperrors.KindMediaFetch, resp.StatusCode, "")
	}

	if resp.ContentLength > s.maxBytes {
		return nil, "", apperrors.Wrap(apperrors.KindMediaFetch, fmt.Errorf("media is %d bytes, the limit is %d", resp.ContentLength, s.maxBytes))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindMediaFetch, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, "", apperrors.Wrap(apperrors.KindMediaFetch, fmt.Errorf("media exceeds the %d byte limit", s.maxBytes))
	}

	return data, detectMediaType(resp.Header.Get("Content-Type"), data), nil
}

// detectMediaType trusts the response header unless it is missing or generic,
// then sniffs the bytes, then falls back to a generic image type.
func detectMediaType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if kind, err := filetype.Match(data); err == nil && kind != types.Unknown {
		return kind.MIME.Value
	}
	return defaultMediaType
}
