package ical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Fetcher loads the raw payload of a feed.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, feedURL string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	return f(ctx, feedURL)
}

// HTTPFetcher fetches feeds over HTTP(S), revalidating with ETag and
// Last-Modified. file:// URLs are read from disk only when enabled. On
// network errors or non-OK responses the last good body is returned if one
// is cached.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	opts      HTTPFetcherOptions

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	etag         string
	lastModified string
	body         []byte
}

// HTTPFetcherOptions configures an HTTPFetcher.
type HTTPFetcherOptions struct {
	// AllowFiles enables file:// feed URLs. Subscriptions are created by
	// end users, so this stays off outside local tooling and tests.
	AllowFiles bool
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client gets a client with the
// given timeout.
func NewHTTPFetcher(client *http.Client, timeout time.Duration, optFns ...func(o *HTTPFetcherOptions)) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	var opts HTTPFetcherOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: "calmesh-ical/1",
		opts:      opts,
		cache:     make(map[string]cacheEntry),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		if !f.opts.AllowFiles {
			return nil, fmt.Errorf("unsupported feed scheme %q", u.Scheme)
		}
		return os.ReadFile(u.Path)
	case "webcal":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported feed scheme %q", u.Scheme)
	}

	f.mu.Lock()
	cached, hasCache := f.cache[feedURL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/calendar")
	if cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}
	if cached.lastModified != "" {
		req.Header.Set("If-Modified-Since", cached.lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			return cached.body, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", redactURL(feedURL), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", redactURL(feedURL), err)
		}
		f.mu.Lock()
		f.cache[feedURL] = cacheEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		return body, nil
	case http.StatusNotModified:
		if !hasCache {
			return nil, errors.New("received 304 Not Modified without a cached body")
		}
		return cached.body, nil
	default:
		if hasCache {
			return cached.body, nil
		}
		return nil, fmt.Errorf("fetch %s: %s", redactURL(feedURL), resp.Status)
	}
}

// redactURL keeps scheme and host only; feed URLs often embed secrets.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
