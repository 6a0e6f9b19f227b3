// Package bubble drains the legacy Bubble REST API: plain cursor pagination
// for the primary entity tables and a per-sheet constrained export for
// answers, which exceed Bubble's cursor ceiling. Full-table results are
// cached as JSON files so re-runs skip the network phase entirely.
package bubble

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/complyera/chainmigrate/internal/legacy"
)

// pageSize is Bubble's maximum page size.
const pageSize = 100

// requestsPerMinute is the client-side rate budget. Bubble's API throttles
// aggressively above this; the limiter waits before every request so
// throughput stays predictable.
const requestsPerMinute = 100

// Client provides HTTP access to a Bubble application's Data API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// RetryInterval scales the linear backoff between retries
	// (attempt × RetryInterval). Defaults to 30 seconds; tests shrink it.
	RetryInterval time.Duration

	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewClient creates a Bubble Data API client with the standard rate limit.
func NewClient(baseURL, token string, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		RetryInterval: 30 * time.Second,
		limiter:       rate.NewLimiter(rate.Every(time.Minute/requestsPerMinute), 1),
		log:           log,
	}
}

// envelope is Bubble's Data API response shape.
type envelope struct {
	Response struct {
		Results   []json.RawMessage `json:"results"`
		Remaining int               `json:"remaining"`
	} `json:"response"`
}

type page struct {
	Results   []json.RawMessage
	Remaining int
}

// fetchPage requests one page. constraints, when non-empty, is the raw JSON
// constraint array Bubble expects in the constraints query parameter.
func (c *Client) fetchPage(ctx context.Context, entity legacy.EntityType, cursor int, constraints string) (page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return page{}, err
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", pageSize))
	q.Set("cursor", fmt.Sprintf("%d", cursor))
	if constraints != "" {
		q.Set("constraints", constraints)
	}
	apiURL := fmt.Sprintf("%s/api/1.1/obj/%s?%s", c.BaseURL, string(entity), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return page{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return page{}, &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return page{}, &transportError{err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return page{}, &statusError{status: resp.StatusCode, body: truncate(string(body), 200)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return page{}, fmt.Errorf("decode %s page at cursor %d: %w", entity, cursor, err)
	}
	return page{Results: env.Response.Results, Remaining: env.Response.Remaining}, nil
}

// FetchAll drains one entity table with plain cursor pagination. Page fetches
// retry with linear backoff; exhausting retries is fatal for the whole run,
// since a partial primary table would corrupt the reconciliation.
func (c *Client) FetchAll(ctx context.Context, entity legacy.EntityType) ([]json.RawMessage, error) {
	var all []json.RawMessage
	cursor := 0
	for {
		pg, err := c.fetchPageWithRetry(ctx, entity, cursor, "")
		if err != nil {
			return nil, fmt.Errorf("export %s at cursor %d: %w", entity, cursor, err)
		}
		all = append(all, pg.Results...)
		if pg.Remaining == 0 || len(pg.Results) == 0 {
			break
		}
		cursor += len(pg.Results)
	}
	c.log.Infow("exported entity", "entity", entity, "records", len(all))
	return all, nil
}

// FetchSheetAnswers drains the answers constrained to a single sheet id.
// Bubble caps pagination cursors around 50k records, so the full answer table
// can only be exported one sheet at a time with an equality constraint.
func (c *Client) FetchSheetAnswers(ctx context.Context, sheetID string) ([]json.RawMessage, error) {
	constraints, err := json.Marshal([]map[string]string{{
		"key":             "Sheet",
		"constraint_type": "equals",
		"value":           sheetID,
	}})
	if err != nil {
		return nil, err
	}

	var all []json.RawMessage
	cursor := 0
	for {
		pg, err := c.fetchPageWithRetry(ctx, legacy.EntityAnswer, cursor, string(constraints))
		if err != nil {
			return nil, fmt.Errorf("answers for sheet %s at cursor %d: %w", sheetID, cursor, err)
		}
		all = append(all, pg.Results...)
		if pg.Remaining == 0 || len(pg.Results) == 0 {
			break
		}
		cursor += len(pg.Results)
	}
	return all, nil
}

func (c *Client) fetchPageWithRetry(ctx context.Context, entity legacy.EntityType, cursor int, constraints string) (page, error) {
	var pg page
	attempt := 0
	operation := func() error {
		p, err := c.fetchPage(ctx, entity, cursor, constraints)
		if err != nil {
			attempt++
			if isRetryable(err) {
				c.log.Warnw("page fetch failed, will retry",
					"entity", entity, "cursor", cursor, "attempt", attempt, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		pg = p
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(newLinearBackOff(c.RetryInterval), ctx)); err != nil {
		return page{}, err
	}
	return pg, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
