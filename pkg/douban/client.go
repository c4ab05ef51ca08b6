// Package douban is a small read-only client for Douban's mobile
// subject-collection API, covering the trending movie and TV listings.
package douban

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the mobile API root the subject collections live under.
	DefaultBaseURL = "https://m.douban.com/rexxar/api/v2"

	// The API rejects requests without a browser-like identity.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
	referer   = "https://movie.douban.com/"

	defaultTimeout = 15 * time.Second
)

// collections maps a category to its subject-collection path segment.
var collections = map[Category]string{
	CategoryMovie: "movie_showing",
	CategoryTV:    "tv_hot",
}

// SubjectURL returns the public page URL for a subject id.
func SubjectURL(id string) string {
	return "https://movie.douban.com/subject/" + id + "/"
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Trending fetches up to limit entries of the category's trending listing.
// An unknown category is an error; no request is issued.
func (c *Client) Trending(ctx context.Context, cat Category, limit int) ([]Item, error) {
	coll, ok := collections[cat]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", cat)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	q := url.Values{}
	q.Set("start", "0")
	q.Set("count", strconv.Itoa(limit))
	u := fmt.Sprintf("%s/subject_collection/%s/items?%s", c.baseURL, coll, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for the error message; the API returns short JSON errors.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("douban %s: status %d: %s", coll, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var payload collectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("douban %s: decode: %w", coll, err)
	}

	items := payload.Items
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		item := Item{
			Title:    it.Title,
			Year:     normalizeYear(it.Year),
			ID:       it.ID,
			Category: cat,
		}
		if it.Rating != nil && it.Rating.Value > 0 {
			v := it.Rating.Value
			item.Rating = &v
		}
		out = append(out, item)
	}
	return out, nil
}

// normalizeYear strips the trailing "年" suffix and surrounding whitespace.
func normalizeYear(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "年"))
}
