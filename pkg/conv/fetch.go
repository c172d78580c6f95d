package conv

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sandevgo/tuskmem/pkg/retry"
)

const (
	maxResponseSize     = 1 << 20 // 1MB limit
	defaultFetchTimeout = 15 * time.Second
)

// Fetcher downloads documents and converts them to plain text.
type Fetcher struct {
	client    *http.Client
	retrier   *retry.Retrier
	userAgent string
}

func NewFetcherWithTimeout(userAgent string, timeout time.Duration, retryCfg *retry.Config) *Fetcher {
	if retryCfg == nil {
		retryCfg = retry.NewDefaultConfig()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		retrier:   retry.NewRetrier(retryCfg),
		userAgent: userAgent,
	}
}

func NewFetcher(userAgent string) *Fetcher {
	return NewFetcherWithTimeout(userAgent, defaultFetchTimeout, nil)
}

// FetchText GETs url and returns its text. HTML and markdown bodies are
// converted; anything else is returned as is.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	var text string
	err := f.retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(err)
			}
			return err
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}

		text, err = convertBody(resp.Header.Get("Content-Type"), url, body)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func convertBody(contentType, url string, body []byte) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case strings.Contains(mediaType, "html"):
		return HTMLToText(string(body))
	case strings.Contains(mediaType, "markdown"):
		return MarkdownToText(body)
	default:
		return DocumentToText(url, body)
	}
}
