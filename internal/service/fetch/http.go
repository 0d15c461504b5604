package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
	"github.com/oshokin/pg-embed/internal/version"
)

var errBadHTTPStatus = errors.New("unexpected http status")

// Downloader writes the bytes found at a URL into w.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// HTTPDownloader fetches artifacts over plain HTTP(S).
type HTTPDownloader struct {
	// client performs the requests.
	client *http.Client
}

// NewHTTPDownloader creates a downloader using client, or
// http.DefaultClient when client is nil.
func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPDownloader{client: client}
}

// Download streams the response body of a GET request into w.
func (d *HTTPDownloader) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", pg.ErrInvalidURL, url, err)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	logger.InfoKV(ctx, "Downloading postgresql binaries", "url", url)

	response, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", pg.ErrDownload, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s, %s: %w", pg.ErrDownload, url, response.Status, errBadHTTPStatus)
	}

	written, err := io.Copy(w, response.Body)
	if err != nil {
		return written, fmt.Errorf("%w: read response body: %w", pg.ErrConversion, err)
	}

	logger.InfoKV(ctx, "Downloaded postgresql binaries", "url", url, "bytes", written)

	return written, nil
}
