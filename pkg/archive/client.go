package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/retry"
)

var (
	// ErrNoSnapshotFound means the archive has no capture within the
	// offset window around the target date.
	ErrNoSnapshotFound = errors.New("no archived snapshot found near the requested date")

	// ErrArchiveUnavailable means the archive service could not be
	// reached or kept failing after retries.
	ErrArchiveUnavailable = errors.New("archive service unavailable")
)

const (
	cdxTimestampLayout = "20060102150405"
	dayLayout          = "20060102"
	userAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.36"

	// Captures shorter than this, or without an <html tag, are error
	// pages the archive serves with a 200.
	minContentLength = 500
)

type ClientConfig struct {
	BaseURL   string  // e.g. http://web.archive.org
	PublicURL string  // link base shown to users; defaults to https://web.archive.org
	MaxOffset int     // days to sweep around the target date
	RateLimit float64 // requests per second
	Timeout   time.Duration
	Retry     retry.Policy

	// MinContentLength overrides the capture sanity threshold; tests use
	// small fixtures.
	MinContentLength int
}

// Client looks up and retrieves Wayback Machine captures via the CDX API.
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://web.archive.org"
	}
	if config.PublicURL == "" {
		config.PublicURL = "https://web.archive.org"
	}
	if config.MaxOffset == 0 {
		config.MaxOffset = 7
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retry.MaxRetries == 0 {
		config.Retry = retry.DefaultPolicy()
	}
	if config.MinContentLength == 0 {
		config.MinContentLength = minContentLength
	}

	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid archive base URL: %w", err)
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// FindSnapshot returns the capture closest to target for domain, sweeping
// days outward from the target (0, +1, -1, +2, -2, ...) up to MaxOffset.
func (c *Client) FindSnapshot(ctx context.Context, domain string, target time.Time) (models.Snapshot, error) {
	for _, offset := range sweepOffsets(c.config.MaxOffset) {
		day := target.AddDate(0, 0, offset)

		var snap models.Snapshot
		var found bool
		err := c.config.Retry.Do(ctx, func() error {
			var err error
			snap, found, err = c.cdxLookup(ctx, domain, day)
			return err
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return models.Snapshot{}, err
			}
			return models.Snapshot{}, fmt.Errorf("%w: %v", ErrArchiveUnavailable, err)
		}
		if found {
			return snap, nil
		}
	}

	return models.Snapshot{}, fmt.Errorf("%w: %s near %s", ErrNoSnapshotFound, domain, target.Format("2006-01-02"))
}

// cdxLookup asks the CDX API for one successful capture on a single day.
func (c *Client) cdxLookup(ctx context.Context, domain string, day time.Time) (models.Snapshot, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.Snapshot{}, false, err
	}

	ts := day.Format(dayLayout)
	cdxURL := fmt.Sprintf(
		"%s/cdx/search/cdx?url=%s&from=%s&to=%s&output=json&fl=timestamp,original&limit=1&filter=statuscode:200",
		c.config.BaseURL, url.QueryEscape(domain), ts, ts,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cdxURL, nil)
	if err != nil {
		return models.Snapshot{}, false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Snapshot{}, false, retry.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("CDX API returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return models.Snapshot{}, false, retry.Transient(err)
		}
		return models.Snapshot{}, false, err
	}

	// The CDX JSON output is a header row followed by result rows.
	var rows [][]string
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("decoding CDX response: %w", err)
	}
	if len(rows) < 2 || len(rows[1]) < 2 {
		return models.Snapshot{}, false, nil
	}

	timestamp, original := rows[1][0], rows[1][1]
	captured, err := time.Parse(cdxTimestampLayout, timestamp)
	if err != nil {
		captured = day
	}

	return models.Snapshot{
		Timestamp:   timestamp,
		OriginalURL: original,
		Captured:    captured,
	}, true, nil
}

// FetchContent retrieves the raw HTML of a capture.
func (c *Client) FetchContent(ctx context.Context, snap models.Snapshot) (string, error) {
	var content string
	err := c.config.Retry.Do(ctx, func() error {
		var err error
		content, err = c.fetchOnce(ctx, snap)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrArchiveUnavailable, err)
	}
	return content, nil
}

func (c *Client) fetchOnce(ctx context.Context, snap models.Snapshot) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	captureURL := fmt.Sprintf("%s/web/%s/%s",
		c.config.BaseURL, snap.Timestamp, url.QueryEscape(snap.OriginalURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, captureURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", retry.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("snapshot fetch returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", retry.Transient(err)
		}
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Transient(err)
	}

	content := string(body)
	if len(content) < c.config.MinContentLength || !strings.Contains(strings.ToLower(content), "<html") {
		return "", fmt.Errorf("capture content looks invalid (length %d)", len(content))
	}

	return content, nil
}

// WaybackURL returns the public link for a capture.
func (c *Client) WaybackURL(snap models.Snapshot) string {
	return fmt.Sprintf("%s/web/%s/%s",
		c.config.PublicURL, snap.Timestamp, url.QueryEscape(snap.OriginalURL))
}

// sweepOffsets yields 0, 1, -1, 2, -2, ... up to maxOffset.
func sweepOffsets(maxOffset int) []int {
	offsets := []int{0}
	for i := 1; i <= maxOffset; i++ {
		offsets = append(offsets, i, -i)
	}
	return offsets
}
