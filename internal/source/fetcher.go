// Package source fetches Congressional Record PDFs and turns them into text.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"congress-digest/internal/config"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrHostNotAllowed is returned for locators outside the configured hosts.
	ErrHostNotAllowed = errors.New("source host not allowed")
	// ErrTooLarge is returned when a document exceeds the configured size cap.
	ErrTooLarge = errors.New("document exceeds maximum size")
)

// HTTPFetcher downloads documents over HTTP(S).
type HTTPFetcher struct {
	client  *resty.Client
	allowed []string
	maxSize int64
}

// NewHTTPFetcher builds a fetcher from cfg. An empty host list allows any host.
func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	client := resty.New().
		SetTimeout(cfg.FetchTimeout).
		SetHeader("Accept", "application/pdf, */*").
		SetHeader("User-Agent", "congress-digest/1.0").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	client.AddRetryCondition(retryCondition)

	return newHTTPFetcher(client, cfg.AllowedSourceHosts, cfg.MaxPDFSize)
}

func newHTTPFetcher(client *resty.Client, allowed []string, maxSize int64) *HTTPFetcher {
	hosts := make([]string, 0, len(allowed))
	for _, h := range allowed {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &HTTPFetcher{client: client, allowed: hosts, maxSize: maxSize}
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// CheckLocator validates that locator is an absolute http(s) URL on an
// allowed host.
func (f *HTTPFetcher) CheckLocator(locator string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return nil, fmt.Errorf("invalid document locator: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid document locator %q: scheme must be http or https", locator)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid document locator %q: missing host", locator)
	}
	if !f.hostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return u, nil
}

func (f *HTTPFetcher) hostAllowed(host string) bool {
	if len(f.allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, h := range f.allowed {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Fetch downloads locator and returns its body. Non-2xx responses and bodies
// over the size cap are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := f.CheckLocator(locator)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %s", u.Redacted(), resp.Status())
	}

	if f.maxSize > 0 && resp.RawResponse.ContentLength > f.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.RawResponse.ContentLength)
	}

	reader := io.Reader(body)
	if f.maxSize > 0 {
		reader = io.LimitReader(body, f.maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, f.maxSize)
	}

	return data, nil
}
