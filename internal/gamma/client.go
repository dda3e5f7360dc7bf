// Package gamma is a thin client for the Polymarket Gamma metadata API.
// The scanner uses it to resolve window slugs into CLOB token ids and
// end timestamps.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds client settings. Gamma rejects requests without a
// browser-ish User-Agent, and some deployments additionally want a
// cookie.
type Config struct {
	BaseURL   string
	UserAgent string
	Cookie    string
	Timeout   time.Duration
}

// DefaultConfig returns settings for the public Gamma API.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://gamma-api.polymarket.com",
		UserAgent: "Mozilla/5.0",
		Timeout:   15 * time.Second,
	}
}

// Client talks to the Gamma API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Gamma client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Market is the slice of a Gamma market we care about. ClobTokenIds
// arrives either as a JSON array or as a string containing a JSON
// array, so it stays raw until extraction.
type Market struct {
	ID           string          `json:"id"`
	ConditionID  string          `json:"conditionId"`
	Question     string          `json:"question"`
	ClobTokenIds json.RawMessage `json:"clobTokenIds"`
	EndDate      string          `json:"endDate"`
}

// Event is one Gamma event (a trading window).
type Event struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Slug    string   `json:"slug"`
	EndDate string   `json:"endDate"`
	Markets []Market `json:"markets"`
}

// EventBySlug fetches the event for a window slug. A slug that resolves
// to no event is an error (the scanner treats it as a reject).
func (c *Client) EventBySlug(ctx context.Context, slug string) (Event, error) {
	var events []Event
	if err := c.getJSON(ctx, "/events", url.Values{"slug": {slug}}, &events); err != nil {
		return Event{}, err
	}
	if len(events) == 0 {
		return Event{}, fmt.Errorf("gamma: no event for slug %q", slug)
	}
	return events[0], nil
}

// Search runs a keyword search and returns the matching event slugs.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	var result struct {
		Events []struct {
			Slug string `json:"slug"`
		} `json:"events"`
	}

	params := url.Values{
		"q":              {query},
		"limit_per_type": {strconv.Itoa(limit)},
	}
	if err := c.getJSON(ctx, "/search", params, &result); err != nil {
		return nil, err
	}

	slugs := make([]string, 0, len(result.Events))
	for _, e := range result.Events {
		if e.Slug != "" {
			slugs = append(slugs, e.Slug)
		}
	}
	return slugs, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Cookie != "" {
		req.Header.Set("Cookie", c.cfg.Cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gamma: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("gamma: %s: HTTP %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gamma: %s: decode: %w", path, err)
	}
	return nil
}

// TokenIDs decodes the market's clobTokenIds field, accepting both the
// array form and the stringified form Gamma uses interchangeably.
func (m Market) TokenIDs() ([]string, error) {
	raw := m.ClobTokenIds
	if len(raw) == 0 {
		return nil, fmt.Errorf("gamma: missing clobTokenIds")
	}

	// string form: "[\"123\",\"456\"]"
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("gamma: clobTokenIds: %w", err)
		}
		raw = json.RawMessage(inner)
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("gamma: clobTokenIds: %w", err)
	}
	return ids, nil
}
