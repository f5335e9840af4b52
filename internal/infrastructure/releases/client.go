// Package releases looks up published Safe contract versions.
package releases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	"github.com/khanhnv2901/safe-audit/internal/infrastructure/httpjson"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// DefaultURL lists releases of the Safe smart account contracts.
const DefaultURL = "https://api.github.com/repos/safe-global/safe-smart-account/releases"

// cacheTTL keeps batch runs from hitting the GitHub rate limit.
const cacheTTL = time.Hour

// StaticReleases is used when the releases API cannot be reached.
var StaticReleases = []safe.Release{
	{Version: "1.5.0"},
	{Version: "1.4.1"},
	{Version: "1.4.0"},
	{Version: "1.3.0"},
	{Version: "1.2.0"},
	{Version: "1.1.1"},
	{Version: "1.0.0"},
}

// Options configures a Client.
type Options struct {
	URL     string
	Timeout time.Duration
	Retries uint64
	// Static replaces the built-in fallback list; an empty slice disables
	// the fallback entirely.
	Static []safe.Release
	Logger *zap.Logger
}

type githubRelease struct {
	TagName     string    `json:"tag_name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
}

// Client fetches releases and caches them for an hour.
type Client struct {
	url    string
	http   *httpjson.Client
	static []safe.Release
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    []safe.Release
	fetchedAt time.Time
}

// New creates a release client.
func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	static := opts.Static
	if static == nil {
		static = StaticReleases
	}
	return &Client{
		url:    opts.URL,
		http:   httpjson.New(opts.Timeout, 0, opts.Retries, opts.Logger),
		static: static,
		logger: opts.Logger,
		now:    time.Now,
	}
}

// Latest returns published releases newest first. When the API fails the
// static list is returned instead; with no static list the error surfaces.
func (c *Client) Latest(ctx context.Context) ([]safe.Release, error) {
	c.mu.Lock()
	if c.cached != nil && c.now().Sub(c.fetchedAt) < cacheTTL {
		out := append([]safe.Release(nil), c.cached...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	releases, err := c.fetch(ctx)
	if err != nil {
		if len(c.static) == 0 {
			return nil, fmt.Errorf("%w: %w", domainerrors.ErrMissingAuxiliaryData, err)
		}
		c.logger.Warn("release lookup failed, using static list", zap.Error(err))
		return safe.SortReleases(c.static), nil
	}

	c.mu.Lock()
	c.cached = releases
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return append([]safe.Release(nil), releases...), nil
}

func (c *Client) fetch(ctx context.Context) ([]safe.Release, error) {
	var rows []githubRelease
	headers := map[string]string{
		"Accept":     "application/vnd.github+json",
		"User-Agent": "safe-audit",
	}
	if err := c.http.Get(ctx, c.url, headers, &rows, nil); err != nil {
		return nil, err
	}

	releases := make([]safe.Release, 0, len(rows))
	for _, r := range rows {
		if r.Draft || r.Prerelease {
			continue
		}
		releases = append(releases, safe.Release{Version: r.TagName, PublishedAt: r.PublishedAt})
	}
	releases = safe.SortReleases(releases)
	if len(releases) == 0 {
		return nil, fmt.Errorf("no published releases at %s", c.url)
	}
	return releases, nil
}
