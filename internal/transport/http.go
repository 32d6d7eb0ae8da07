package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	maxRetries     = 3
	initialBackoff = 2 * time.Second
)

// HTTPClient fetches bill documents from an HTTP mirror of the source tree.
// It is stateless per request; retries with exponential backoff are applied
// to transient failures, never to a definite 404.
type HTTPClient struct {
	base   string
	client *http.Client
}

// NewHTTPClient creates a client against the given mirror base URL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchBillHistory retrieves one bill-history XML document.
func (c *HTTPClient) FetchBillHistory(ctx context.Context, session, billType string, number int) ([]byte, error) {
	url := c.base + escapePath(HistoryPath(session, billType, number))

	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ListBillNumbers walks the chamber directory index, then every bucket index
// for the type, collecting bill numbers out of the filenames.
func (c *HTTPClient) ListBillNumbers(ctx context.Context, session, billType string) ([]int, error) {
	chamberURL := c.base + chamberPath(session, billType) + "/"

	body, err := c.fetchWithRetry(ctx, chamberURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets for %s: %w", billType, err)
	}

	var numbers []int
	for _, dir := range indexEntries(body) {
		if !matchBucketDir(dir, billType) {
			continue
		}

		bucketURL := chamberURL + dir + "/"
		listing, err := c.fetchWithRetry(ctx, bucketURL)
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", dir, err)
		}

		for _, name := range indexEntries(listing) {
			if n, ok := parseHistoryFilename(name, billType); ok {
				numbers = append(numbers, n)
			}
		}
	}

	sort.Ints(numbers)
	return numbers, nil
}

// FetchTextDocument retrieves a bill-text HTML page by absolute URL.
func (c *HTTPClient) FetchTextDocument(ctx context.Context, url string) (string, error) {
	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Close satisfies Client; the HTTP client holds no persistent connection
// beyond the transport's own pool.
func (c *HTTPClient) Close() error { return nil }

// fetchWithRetry performs an HTTP GET with exponential backoff. A 404 is
// returned as ErrNotFound immediately; 429 and 5xx are retried.
func (c *HTTPClient) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (HTTP 429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

var hrefPattern = regexp.MustCompile(`href="([^"?]+)"`)

// indexEntries extracts entry names from a directory index page. Trailing
// slashes on directory links are dropped; parent links are skipped.
func indexEntries(page []byte) []string {
	var names []string
	for _, m := range hrefPattern.FindAllStringSubmatch(string(page), -1) {
		name := strings.TrimSuffix(m[1], "/")
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		name = unescapePath(name)
		if name == "" || name == ".." {
			continue
		}
		names = append(names, name)
	}
	return names
}

func escapePath(p string) string {
	return strings.ReplaceAll(p, " ", "%20")
}

func unescapePath(p string) string {
	return strings.ReplaceAll(p, "%20", " ")
}
