// Package arxiv searches the arXiv Atom API for recently submitted papers.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/literature-agent/internal/model"
	"github.com/sells-group/literature-agent/internal/resilience"
)

const defaultBaseURL = "https://export.arxiv.org/api/query"

// arXiv asks for no more than one request every three seconds.
const requestsPerSecond = 1.0 / 3.0

// Client searches arXiv.
type Client interface {
	Search(ctx context.Context, q Query) ([]model.ArxivPaper, error)
}

// Query describes one search.
type Query struct {
	Keywords   []string
	DaysBack   int
	MaxResults int
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
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
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient creates an arXiv client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// atomFeed mirrors the subset of the Atom response we consume.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	PrimaryCategory struct {
		Term string `xml:"term,attr"`
	} `xml:"primary_category"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

// Search queries arXiv for papers matching any keyword, submitted or updated
// within the lookback window, newest first.
func (c *httpClient) Search(ctx context.Context, q Query) ([]model.ArxivPaper, error) {
	quoted := make([]string, len(q.Keywords))
	for i, kw := range q.Keywords {
		quoted[i] = fmt.Sprintf("%q", kw)
	}
	searchQuery := "all:" + strings.Join(quoted, " OR ")

	params := url.Values{}
	params.Set("search_query", searchQuery)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", q.MaxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	zap.L().Info("fetching arxiv papers",
		zap.String("query", searchQuery),
		zap.Int("days_back", q.DaysBack),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "arxiv: rate limit wait")
	}

	body, err := resilience.DoVal(ctx, c.retry, "arxiv.search",
		func(ctx context.Context) ([]byte, error) {
			return c.get(ctx, c.baseURL+"?"+params.Encode())
		})
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: fetch feed")
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, eris.Wrap(err, "arxiv: parse feed")
	}

	cutoff := c.now().AddDate(0, 0, -q.DaysBack)
	papers := make([]model.ArxivPaper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		paper, err := parseEntry(entry)
		if err != nil {
			zap.L().Warn("skipping malformed arxiv entry", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		if paper.Published.Before(cutoff) && paper.Updated.Before(cutoff) {
			continue
		}
		papers = append(papers, paper)
	}

	zap.L().Info("retrieved arxiv papers", zap.Int("count", len(papers)))
	return papers, nil
}

func (c *httpClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: create request")
	}
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: read response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("arxiv: unexpected status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}

func parseEntry(entry atomEntry) (model.ArxivPaper, error) {
	// Entry IDs look like http://arxiv.org/abs/2401.12345v2.
	idx := strings.LastIndex(entry.ID, "/abs/")
	if idx < 0 {
		return model.ArxivPaper{}, eris.Errorf("arxiv: entry id %q has no /abs/ segment", entry.ID)
	}
	arxivID := entry.ID[idx+len("/abs/"):]

	published, err := time.Parse(time.RFC3339, entry.Published)
	if err != nil {
		return model.ArxivPaper{}, eris.Wrap(err, "arxiv: parse published date")
	}
	updated, err := time.Parse(time.RFC3339, entry.Updated)
	if err != nil {
		return model.ArxivPaper{}, eris.Wrap(err, "arxiv: parse updated date")
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		authors = append(authors, strings.TrimSpace(a.Name))
	}
	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		categories = append(categories, cat.Term)
	}
	primary := entry.PrimaryCategory.Term
	if primary == "" {
		primary = "cs.CV"
	}

	return model.ArxivPaper{
		ArxivID:         arxivID,
		Title:           collapseWhitespace(entry.Title),
		Authors:         authors,
		Abstract:        collapseWhitespace(entry.Summary),
		Published:       published,
		Updated:         updated,
		PrimaryCategory: primary,
		Categories:      categories,
		PDFURL:          strings.Replace(entry.ID, "/abs/", "/pdf/", 1) + ".pdf",
	}, nil
}

// collapseWhitespace flattens the newline-wrapped text arXiv feeds carry.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
