package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when no pharmacy matches the queried phone number.
var ErrNotFound = fmt.Errorf("pharmacy not found")

// Client talks to the pharmacy directory REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a directory client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// List fetches every pharmacy in the directory.
func (c *Client) List(ctx context.Context) ([]Pharmacy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("directory error (status %d): %s", resp.StatusCode, string(body))
	}

	var pharmacies []Pharmacy
	if err := json.Unmarshal(body, &pharmacies); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return pharmacies, nil
}

// FindByPhone looks up a pharmacy by its phone number. Matching is performed
// on normalized (digits-only) numbers. When the filtered query returns
// nothing usable, the full directory is scanned as a fallback.
// Returns ErrNotFound when no record matches.
func (c *Client) FindByPhone(ctx context.Context, phone string) (*Pharmacy, error) {
	queryURL := fmt.Sprintf("%s?phone=%s", c.baseURL, url.QueryEscape(phone))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var matches []Pharmacy
		if err := json.Unmarshal(body, &matches); err == nil && len(matches) > 0 {
			return &matches[0], nil
		}
		// The API answers some misses with a quoted "Not found" string
		// instead of an empty list; fall through to the directory scan.
	}

	c.logger.Debug("filtered lookup missed, scanning directory",
		zap.String("phone", phone),
	)
	return c.scanByPhone(ctx, phone)
}

// scanByPhone fetches the full directory and compares normalized numbers.
func (c *Client) scanByPhone(ctx context.Context, phone string) (*Pharmacy, error) {
	pharmacies, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	want := NormalizePhone(phone)
	for i := range pharmacies {
		if NormalizePhone(pharmacies[i].Phone) == want {
			return &pharmacies[i], nil
		}
	}
	return nil, ErrNotFound
}

// NormalizePhone strips every non-digit character for comparison.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
