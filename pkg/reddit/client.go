// Package reddit reads the public Reddit JSON listing API. Public listings
// need no OAuth, only a descriptive User-Agent.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/literature-agent/internal/model"
	"github.com/sells-group/literature-agent/internal/resilience"
)

const (
	defaultBaseURL   = "https://www.reddit.com"
	defaultUserAgent = "literature-agent/1.0 (research paper monitoring)"

	// Reddit caps listing size at 100 and defaults to 25 when unset.
	maxListingLimit     = 100
	defaultListingLimit = 25
)

// Client reads subreddit listings.
type Client interface {
	Search(ctx context.Context, q Query) ([]model.RedditPost, error)
}

// Query describes one search across subreddits.
type Query struct {
	Subreddits []string
	DaysBack   int
	MaxResults int

	// Keywords, when non-empty, filters posts to those mentioning any
	// keyword in the title or body.
	Keywords []string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default site URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRateLimit overrides the request pacing.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	retry     resilience.RetryConfig
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewClient creates a Reddit client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		http:      &http.Client{Timeout: 30 * time.Second},
		retry:     resilience.DefaultRetryConfig(),
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// listing mirrors the subset of the listing response we consume.
type listing struct {
	Data struct {
		Children []struct {
			Data postData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// Search reads the newest posts from every subreddit concurrently and returns
// the combined set sorted by score, highest first. A failed subreddit is
// logged and contributes nothing; Search errors only when the context is
// cancelled.
func (c *httpClient) Search(ctx context.Context, q Query) ([]model.RedditPost, error) {
	results := make([][]model.RedditPost, len(q.Subreddits))

	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range q.Subreddits {
		i, sub := i, sub
		g.Go(func() error {
			posts, err := c.searchSubreddit(gctx, sub, q)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Error("failed to fetch subreddit",
					zap.String("subreddit", sub),
					zap.Error(err),
				)
				return nil
			}
			results[i] = posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "reddit: search subreddits")
	}

	var all []model.RedditPost
	for _, posts := range results {
		all = append(all, posts...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	zap.L().Info("retrieved reddit posts", zap.Int("count", len(all)))
	return all, nil
}

func (c *httpClient) searchSubreddit(ctx context.Context, subreddit string, q Query) ([]model.RedditPost, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = defaultListingLimit
	}
	if limit > maxListingLimit {
		limit = maxListingLimit
	}
	u := fmt.Sprintf("%s/r/%s/new.json?limit=%d", c.baseURL, subreddit, limit)

	zap.L().Info("fetching reddit posts",
		zap.String("subreddit", subreddit),
		zap.Int("days_back", q.DaysBack),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "reddit: rate limit wait")
	}

	body, err := resilience.DoVal(ctx, c.retry, "reddit.listing",
		func(ctx context.Context) ([]byte, error) {
			return c.get(ctx, u)
		})
	if err != nil {
		return nil, eris.Wrap(err, "reddit: fetch listing")
	}

	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, eris.Wrap(err, "reddit: parse listing")
	}

	cutoff := c.now().AddDate(0, 0, -q.DaysBack)
	posts := make([]model.RedditPost, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		post, ok := parsePost(child.Data)
		if !ok {
			continue
		}
		if post.CreatedUTC.Before(cutoff) {
			continue
		}
		if len(q.Keywords) > 0 && !matchesKeywords(post, q.Keywords) {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (c *httpClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reddit: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "reddit: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "reddit: read response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("reddit: unexpected status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}

func parsePost(d postData) (model.RedditPost, bool) {
	if d.ID == "" || d.Author == "[deleted]" || d.Author == "[removed]" {
		return model.RedditPost{}, false
	}
	return model.RedditPost{
		PostID:      d.ID,
		Title:       strings.TrimSpace(d.Title),
		Author:      d.Author,
		Subreddit:   d.Subreddit,
		SelfText:    strings.TrimSpace(d.SelfText),
		ExternalURL: d.URL,
		Permalink:   d.Permalink,
		CreatedUTC:  time.Unix(int64(d.CreatedUTC), 0).UTC(),
		Score:       d.Score,
		NumComments: d.NumComments,
	}, true
}

func matchesKeywords(post model.RedditPost, keywords []string) bool {
	text := strings.ToLower(post.Title + " " + post.SelfText)
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
