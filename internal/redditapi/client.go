// Package redditapi implements reddit.API over the public JSON endpoints using gocolly.
package redditapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/JakeFAU/reddit-collector/internal/metrics"
	"github.com/JakeFAU/reddit-collector/internal/policy/ratelimit"
	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

const (
	defaultBaseURL = "https://oauth.reddit.com"
	maxPageSize    = 100
	maxMoreBatch   = 100
)

// Config controls the API client.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	UserAgent    string
	Timeout      time.Duration
	// RequestsPerMinute paces outbound requests; zero disables pacing.
	RequestsPerMinute int
}

// Client implements reddit.API. It is safe for concurrent use.
type Client struct {
	cfg           Config
	baseURL       string
	anonymous     bool
	baseCollector *colly.Collector
	logger        *zap.Logger
}

var _ reddit.API = (*Client)(nil)

// New builds a Client. Without credentials it talks to the anonymous
// ".json" endpoints instead of the OAuth host.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	anonymous := cfg.ClientID == "" || cfg.ClientSecret == ""
	transport := buildTransport(ctx, cfg, anonymous, timeout)

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.UserAgent = cfg.UserAgent
	c.WithTransport(transport)
	c.SetRequestTimeout(timeout)
	// colly truncates bodies over its 10 MiB default without an error; large
	// comment trees exceed that.
	c.MaxBodySize = 0
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &Client{
		cfg:           cfg,
		baseURL:       base,
		anonymous:     anonymous,
		baseCollector: c,
		logger:        logger,
	}, nil
}

func buildTransport(ctx context.Context, cfg Config, anonymous bool, timeout time.Duration) http.RoundTripper {
	var rt http.RoundTripper = &userAgentTransport{agent: cfg.UserAgent, base: newHTTPTransport()}
	if !anonymous {
		tokenClient := &http.Client{Transport: rt, Timeout: timeout}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		rt = &oauth2.Transport{
			Source: cc.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, tokenClient)),
			Base:   rt,
		}
	}
	if cfg.RequestsPerMinute > 0 {
		rt = &ratelimit.Transport{
			Limiter: ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
			Base:    rt,
		}
	}
	return rt
}

// statusError is a non-success HTTP response other than throttling.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Listing pages through /r/{subreddit}/{sort} until limit submissions are read.
func (c *Client) Listing(ctx context.Context, subreddit string, sort reddit.SortMethod, limit int) ([]reddit.Submission, error) {
	var (
		out   []reddit.Submission
		after string
	)
	for len(out) < limit {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(min(limit-len(out), maxPageSize)))
		q.Set("raw_json", "1")
		if sort.Timed() {
			q.Set("t", "all")
		}
		if after != "" {
			q.Set("after", after)
		}
		body, err := c.get(ctx, "listing", "/r/"+url.PathEscape(subreddit)+"/"+string(sort), q)
		if err != nil {
			switch code := statusOf(err); {
			case code >= 300 && code < 400, code == http.StatusNotFound, code == http.StatusForbidden:
				return nil, fmt.Errorf("listing r/%s: %w", subreddit, reddit.ErrSourceNotFound)
			}
			return nil, fmt.Errorf("listing r/%s: %w", subreddit, err)
		}
		page, next, err := decodeListing(body)
		if err != nil {
			return nil, fmt.Errorf("decode listing r/%s: %w", subreddit, err)
		}
		out = append(out, page...)
		if next == "" || len(page) == 0 {
			break
		}
		after = next
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CommentTree fetches a submission's comment tree, or the subtree rooted at
// focusCommentID when it is set.
func (c *Client) CommentTree(ctx context.Context, submissionID, focusCommentID string, limit int) (reddit.CommentPage, error) {
	q := url.Values{}
	q.Set("raw_json", "1")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if focusCommentID != "" {
		q.Set("comment", focusCommentID)
	}
	body, err := c.get(ctx, "comments", "/comments/"+url.PathEscape(submissionID), q)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return reddit.CommentPage{}, fmt.Errorf("comments %s: %w", submissionID, reddit.ErrAbsent)
		}
		return reddit.CommentPage{}, fmt.Errorf("comments %s: %w", submissionID, err)
	}
	page, err := decodeCommentTree(body, submissionID)
	if err != nil {
		return reddit.CommentPage{}, fmt.Errorf("decode comments %s: %w", submissionID, err)
	}
	return page, nil
}

// MoreChildren expands up to 100 placeholder ids in one request.
func (c *Client) MoreChildren(ctx context.Context, submissionID string, childIDs []string) (reddit.CommentPage, error) {
	if len(childIDs) == 0 {
		return reddit.CommentPage{}, nil
	}
	if len(childIDs) > maxMoreBatch {
		return reddit.CommentPage{}, fmt.Errorf("morechildren accepts at most %d ids, got %d", maxMoreBatch, len(childIDs))
	}
	q := url.Values{}
	q.Set("api_type", "json")
	q.Set("link_id", "t3_"+submissionID)
	q.Set("children", strings.Join(childIDs, ","))
	q.Set("limit_children", "false")
	q.Set("raw_json", "1")
	body, err := c.get(ctx, "morechildren", "/api/morechildren", q)
	if err != nil {
		return reddit.CommentPage{}, fmt.Errorf("morechildren %s: %w", submissionID, err)
	}
	page, err := decodeMoreChildren(body, submissionID)
	if err != nil {
		return reddit.CommentPage{}, fmt.Errorf("decode morechildren %s: %w", submissionID, err)
	}
	return page, nil
}

// User reads an account profile. Missing, forbidden and suspended accounts
// return reddit.ErrAbsent.
func (c *Client) User(ctx context.Context, name string) (reddit.Author, error) {
	q := url.Values{}
	q.Set("raw_json", "1")
	body, err := c.get(ctx, "user", "/user/"+url.PathEscape(name)+"/about", q)
	if err != nil {
		if code := statusOf(err); code == http.StatusNotFound || code == http.StatusForbidden {
			return reddit.Author{}, fmt.Errorf("user %s: %w", name, reddit.ErrAbsent)
		}
		return reddit.Author{}, fmt.Errorf("user %s: %w", name, err)
	}
	author, err := decodeUser(body)
	if err != nil {
		if errors.Is(err, reddit.ErrAbsent) {
			return reddit.Author{}, fmt.Errorf("user %s: %w", name, err)
		}
		return reddit.Author{}, fmt.Errorf("decode user %s: %w", name, err)
	}
	return author, nil
}

// UserActivity lists creation times of an author's newest comments or
// submissions, newest first. Hidden histories yield no activity.
func (c *Client) UserActivity(ctx context.Context, name string, kind reddit.ActivityKind, limit int) ([]time.Time, error) {
	q := url.Values{}
	q.Set("sort", "new")
	q.Set("limit", strconv.Itoa(min(max(limit, 1), maxPageSize)))
	q.Set("raw_json", "1")
	body, err := c.get(ctx, "user_"+string(kind), "/user/"+url.PathEscape(name)+"/"+string(kind), q)
	if err != nil {
		if code := statusOf(err); code == http.StatusNotFound || code == http.StatusForbidden {
			return nil, nil
		}
		return nil, fmt.Errorf("user %s %s: %w", name, kind, err)
	}
	times, err := decodeActivity(body)
	if err != nil {
		return nil, fmt.Errorf("decode user %s %s: %w", name, kind, err)
	}
	return times, nil
}

// get issues one GET through a cloned collector and returns the body of a 2xx
// response. Throttling maps to *reddit.ThrottleError and other non-2xx
// statuses to *statusError.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	if c.anonymous {
		path += ".json"
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var (
		body     []byte
		status   int
		header   http.Header
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	collector.Context = ctx
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			status = r.StatusCode
			if r.Headers != nil {
				header = r.Headers.Clone()
			}
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	var visitErr error
	select {
	case <-ctx.Done():
	case visitErr = <-done:
	}
	if ctx.Err() != nil {
		metrics.ObserveAPIRequest(endpoint, "canceled")
		return nil, fmt.Errorf("%s request canceled: %w", endpoint, ctx.Err())
	}
	switch {
	case status == http.StatusTooManyRequests:
		metrics.ObserveAPIRequest(endpoint, "throttled")
		return nil, &reddit.ThrottleError{RetryAfter: parseRetryAfter(header, time.Now())}
	case status >= 300:
		metrics.ObserveAPIRequest(endpoint, strconv.Itoa(status))
		return nil, &statusError{Code: status}
	case visitErr != nil:
		metrics.ObserveAPIRequest(endpoint, "error")
		return nil, fmt.Errorf("%s visit failed: %w", endpoint, visitErr)
	case fetchErr != nil:
		metrics.ObserveAPIRequest(endpoint, "error")
		return nil, fmt.Errorf("%s response failed: %w", endpoint, fetchErr)
	}
	metrics.ObserveAPIRequest(endpoint, "ok")
	c.logger.Debug("API request complete", zap.String("endpoint", endpoint), zap.Int("bytes", len(body)))
	return body, nil
}

// parseRetryAfter reads Retry-After (seconds or HTTP date), falling back to
// the X-Ratelimit-Reset seconds hint. Zero means no hint.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	if h == nil {
		return 0
	}
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil && at.After(now) {
			return at.Sub(now)
		}
	}
	if v := strings.TrimSpace(h.Get("X-Ratelimit-Reset")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
