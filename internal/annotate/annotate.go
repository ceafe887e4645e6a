// Package annotate posts run context onto Grafana dashboards.
//
// Responsibilities:
//   - Post one annotation per pod termination so load-test dashboards show
//     when disruptions happened
//   - Post one annotation per strongly significant metric deviation
//   - Retry transient Grafana failures with capped backoff
package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/config"
	"github.com/resilitics/resilitics/internal/impact"
	"github.com/resilitics/resilitics/internal/metrics"
	"github.com/resilitics/resilitics/internal/stats"
)

const annotationsPath = "/api/annotations"

const (
	defaultTimeout = 10 * time.Second
	maxAttempts    = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// Annotation is the Grafana annotations API request body. Times are epoch
// milliseconds, the same clock the event log uses.
type Annotation struct {
	DashboardUID string   `json:"dashboardUID,omitempty"`
	PanelID      int64    `json:"panelId,omitempty"`
	Time         int64    `json:"time"`
	TimeEnd      int64    `json:"timeEnd,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Text         string   `json:"text"`
}

// Client posts annotations to one Grafana instance.
type Client struct {
	baseURL    string
	token      string
	tags       []string
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient builds a client from the annotate configuration section.
func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if cfg.Annotate.GrafanaURL == "" {
		return nil, fmt.Errorf("annotate.grafana_url is required")
	}
	timeout := defaultTimeout
	if cfg.Annotate.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Annotate.TimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Annotate.GrafanaURL, "/"),
		token:      cfg.Annotate.Token,
		tags:       cfg.Annotate.Tags,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Post sends one annotation. Network errors, 429, and 5xx responses are
// retried; other responses fail immediately.
func (c *Client) Post(ctx context.Context, a Annotation) error {
	if len(a.Tags) == 0 {
		a.Tags = c.tags
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal annotation: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				metrics.AnnotationsPostedTotal.WithLabelValues("error").Inc()
				return ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}

		retryable, err := c.post(ctx, body)
		if err == nil {
			metrics.AnnotationsPostedTotal.WithLabelValues("ok").Inc()
			return nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("annotation post failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	metrics.AnnotationsPostedTotal.WithLabelValues("error").Inc()
	return lastErr
}

// post performs a single attempt and reports whether a failure is worth
// retrying.
func (c *Client) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+annotationsPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return true, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return retryable, fmt.Errorf("grafana API error %d: %s", resp.StatusCode, respBody)
}

// AnnotateRun posts a marker for every termination in the run plus one
// annotation per metric whose deviation reached Significant on either
// scale. Posting is best effort: every annotation is attempted and the
// first failure is returned.
func (c *Client) AnnotateRun(ctx context.Context, results []impact.Result) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for i := range results {
		r := &results[i]
		record(c.Post(ctx, Annotation{
			Time: r.Event.Time,
			Text: fmt.Sprintf("pod %s terminated (%s)", r.Event.Pod, r.Event.Outcome),
		}))

		for _, ma := range r.Metrics {
			if !ma.Available {
				continue
			}
			if ma.ZLabel.Rank() < stats.Significant.Rank() && ma.PctLabel.Rank() < stats.Significant.Rank() {
				continue
			}
			record(c.Post(ctx, Annotation{
				Time: r.Event.Time,
				Tags: c.impactTags(),
				Text: fmt.Sprintf("%s %+.1f%% (z=%.2f) after pod %s termination",
					ma.Column, ma.PercentChange, ma.ZScore, r.Event.Pod),
			}))
		}
	}
	return firstErr
}

// impactTags returns the configured tags plus "impact", without aliasing
// the configured slice.
func (c *Client) impactTags() []string {
	tags := make([]string, 0, len(c.tags)+1)
	tags = append(tags, c.tags...)
	return append(tags, "impact")
}

// backoff returns the delay before the given 0-based retry; exponential
// with a cap.
func backoff(attempt int) time.Duration {
	d := initialBackoff
	for i := 0; i < attempt && d < maxBackoff; i++ {
		d = d * 3
		if d > maxBackoff {
			d = maxBackoff
		}
	}
	return d
}
