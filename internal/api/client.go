// Package api provides the HTTP client for the track server and for
// downloading audio from signed URLs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/glebovdev/seasons-cli/internal/config"
	"github.com/glebovdev/seasons-cli/internal/track"
	"github.com/go-resty/resty/v2"
)

const (
	requestTimeout = 30 * time.Second
	MaxRetries     = 3
	RetryDelay     = time.Second * 2
)

type httpStatusError struct {
	StatusCode int
	Status     string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Status)
}

// IsNonRetryable reports whether err is a client error that will not go away
// on retry, such as a missing track or an expired signature.
func IsNonRetryable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 403, 404, 410:
			return true
		}
	}
	return false
}

// IsExpired reports whether err looks like a signed URL that is no longer valid.
func IsExpired(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 403
	}
	return false
}

// Client talks to the track server. Manifest requests share a short timeout;
// audio downloads use a client without an overall deadline since a body may
// take minutes to arrive.
type Client struct {
	client   *resty.Client
	download *resty.Client
}

// NewClient creates a client for the given server. serverURL may be empty
// when only downloads from absolute URLs are needed.
func NewClient(serverURL string) *Client {
	userAgent := fmt.Sprintf("Seasons-CLI/%s", config.AppVersion)

	httpClient := &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimRight(serverURL, "/")).
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", userAgent).
			SetRetryCount(MaxRetries).
			SetRetryWaitTime(RetryDelay).
			AddRetryCondition(retryable),
		download: resty.NewWithClient(httpClient).
			SetHeader("User-Agent", userAgent).
			SetRetryCount(MaxRetries).
			SetRetryWaitTime(RetryDelay).
			AddRetryCondition(retryable),
	}
}

func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp.StatusCode() >= 500
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// GetTrack fetches the manifest of a track: its name, a freshly signed URL
// and its lyrics.
func (c *Client) GetTrack(ctx context.Context, path string) (*track.Track, error) {
	if strings.Trim(path, "/") == "" {
		return nil, fmt.Errorf("empty track path")
	}

	resp, err := c.client.R().SetContext(ctx).Get("/tracks/" + escapePath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track %s: %w", path, err)
	}

	if !resp.IsSuccess() {
		return nil, &httpStatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	var t track.Track
	if err := json.Unmarshal(resp.Body(), &t); err != nil {
		return nil, fmt.Errorf("failed to parse track response: %w", err)
	}

	if t.Path == "" {
		t.Path = strings.Trim(path, "/")
	}
	if t.Name == "" {
		t.Name = track.DisplayName(t.Path)
	}

	return &t, nil
}

// Fetch downloads the whole body at rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.download.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, &httpStatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	return resp.Body(), nil
}

// Open starts a download and hands back the unread body with its declared
// length (-1 when unknown). The caller must close the body.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	resp, err := c.download.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open audio stream: %w", err)
	}

	body := resp.RawBody()
	if !resp.IsSuccess() {
		if body != nil {
			body.Close()
		}
		return nil, 0, &httpStatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	return body, resp.RawResponse.ContentLength, nil
}
