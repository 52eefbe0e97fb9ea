// Package congress is a small client for the congress.gov daily
// Congressional Record API.
package congress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"congress-digest/internal/config"

	"github.com/go-resty/resty/v2"
)

// ErrNotFound is returned when the API has no such issue.
var ErrNotFound = errors.New("congressional record issue not found")

// Client talks to the congress.gov v3 API.
type Client struct {
	http *resty.Client
}

// NewClient builds a client from cfg.
func NewClient(cfg *config.Config) *Client {
	return newClient(cfg.CongressAPIURL, cfg.CongressAPIKey, cfg.FetchTimeout)
}

func newClient(baseURL, apiKey string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetQueryParam("format", "json").
		SetQueryParam("api_key", apiKey).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second)

	client.AddRetryCondition(retryCondition)

	return &Client{http: client}
}

// retryCondition determines if a request should be retried
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

// ListIssues returns one page of issues, newest first.
func (c *Client) ListIssues(ctx context.Context, offset, limit int) (*Page, error) {
	var out listResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("offset", strconv.Itoa(offset)).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/daily-congressional-record")
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	return &Page{
		Issues: out.Issues,
		Total:  out.Pagination.Count,
		More:   out.Pagination.Next != "",
	}, nil
}

// GetIssue returns one issue with its section documents.
func (c *Client) GetIssue(ctx context.Context, volume int, issue string) (*IssueDetail, error) {
	var out detailResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"volume": strconv.Itoa(volume),
			"issue":  issue,
		}).
		SetResult(&out).
		Get("/daily-congressional-record/{volume}/{issue}")
	if err != nil {
		return nil, fmt.Errorf("get issue %d/%s: %w", volume, issue, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %d/%s", ErrNotFound, volume, issue)
	}
	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("get issue %d/%s: %w", volume, issue, err)
	}

	return &out.Issue, nil
}

func checkResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Errorf("unexpected status %s: %s", resp.Status(), body)
}
