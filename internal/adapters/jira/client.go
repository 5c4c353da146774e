/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Client is the single tracker client of a process. It is safe for
// concurrent use; all fetches share its connection pool and rate-limit state.
type Client struct {
	baseURL string
	token   string
	user    string
	pass    string
	http    *http.Client
	log     zerolog.Logger

	timeout     time.Duration
	maxRetries  int
	pages       int
	initialWait time.Duration
	fields      Fields

	throttle throttle
	requests atomic.Int64
	retries  atomic.Int64
	limited  atomic.Int64
	failed   atomic.Int64
}

// Fields names the custom fields that carry sprint membership and story
// points; they differ between Jira installations.
type Fields struct {
	Sprint string
	Points string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.JiraBaseURL, "/"),
		token:       cfg.JiraPAT,
		user:        cfg.JiraUsername,
		pass:        cfg.JiraPassword,
		http:        &http.Client{},
		log:         log.With().Str("component", "jira").Logger(),
		timeout:     cfg.HTTPTimeout,
		maxRetries:  cfg.JiraMaxRetries,
		pages:       cfg.JiraPageSize,
		initialWait: 300 * time.Millisecond,
		fields:      Fields{Sprint: cfg.JiraSprintField, Points: cfg.JiraPointsField},
	}
}

// Stats is a snapshot of the client counters.
type Stats struct {
	Requests    int64
	Retries     int64
	RateLimited int64
	Failed      int64
}

func (c *Client) Stats() Stats {
	return Stats{
		Requests:    c.requests.Load(),
		Retries:     c.retries.Load(),
		RateLimited: c.limited.Load(),
		Failed:      c.failed.Load(),
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.user != "" && c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}

// getJSON performs a GET with bounded exponential backoff and decodes the
// body into out. Timeouts, 429 and 5xx are retried; any other status >= 300
// fails at once with ErrRejected.
func (c *Client) getJSON(ctx context.Context, resource, path string, q url.Values, out any) error {
	if c.baseURL == "" {
		return errors.New("jira: empty baseURL")
	}
	u := c.apiURL(path, q)

	var (
		attempts int
		lastCode int
		lastBody string
	)
	op := func() ([]byte, error) {
		if attempts > 0 {
			c.retries.Add(1)
		}
		attempts++
		if err := c.throttle.wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		body, code, err := c.attempt(ctx, u)
		lastCode, lastBody = code, ""
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		case code == http.StatusTooManyRequests:
			c.limited.Add(1)
			lastBody = snippet(body)
			return nil, errors.New("rate limited")
		case code >= 500:
			lastBody = snippet(body)
			return nil, errors.New("server error")
		case code >= 300:
			lastBody = snippet(body)
			return nil, backoff.Permanent(ErrRejected)
		}
		return body, nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialWait
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		c.log.Debug().Str("resource", resource).Int("status", lastCode).Dur("wait", wait).Err(err).Msg("retrying")
	}
	body, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		c.failed.Add(1)
		apiErr := &APIError{Resource: resource, Status: lastCode, Attempts: attempts, Body: lastBody}
		switch {
		case errors.Is(err, ErrRejected), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
			apiErr.Err = err
		default:
			apiErr.Err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("jira %s: decode: %w", resource, err)
	}
	return nil
}

// attempt performs one request under its own timeout.
func (c *Client) attempt(ctx context.Context, u string) ([]byte, int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		c.throttle.hold(retryAfter(resp.Header.Get("Retry-After")))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return b, resp.StatusCode, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// throttle is the shared rate-limit cooldown. A 429 seen by any caller makes
// every caller wait until the server's Retry-After has passed.
type throttle struct {
	mu    sync.Mutex
	until time.Time
}

func (t *throttle) hold(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	t.mu.Lock()
	if until.After(t.until) {
		t.until = until
	}
	t.mu.Unlock()
}

func (t *throttle) wait(ctx context.Context) error {
	t.mu.Lock()
	d := time.Until(t.until)
	t.mu.Unlock()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
