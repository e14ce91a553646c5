// Package openalex searches the OpenAlex works API.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/literature-agent/internal/model"
	"github.com/sells-group/literature-agent/internal/resilience"
)

const (
	defaultBaseURL = "https://api.openalex.org"

	// OpenAlex caps page size at 200.
	maxPerPage = 200
)

// Client searches OpenAlex.
type Client interface {
	Search(ctx context.Context, q Query) ([]model.OpenAlexWork, error)
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

// WithMailto sets the polite pool contact address.
func WithMailto(mailto string) Option {
	return func(c *httpClient) {
		c.mailto = mailto
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
	mailto  string
	http    *http.Client
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient creates an OpenAlex client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// workResponse mirrors the subset of the /works response we consume.
type workResponse struct {
	Results []work `json:"results"`
}

type work struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DOI                   string           `json:"doi"`
	PublicationDate       string           `json:"publication_date"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		PDFURL string `json:"pdf_url"`
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	OpenAccess struct {
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
}

// Search queries OpenAlex for works matching any keyword published within the
// lookback window. Works without an abstract are dropped since the generation
// stage has nothing to summarize.
func (c *httpClient) Search(ctx context.Context, q Query) ([]model.OpenAlexWork, error) {
	quoted := make([]string, len(q.Keywords))
	for i, kw := range q.Keywords {
		quoted[i] = fmt.Sprintf("%q", kw)
	}
	search := strings.Join(quoted, " OR ")
	fromDate := c.now().AddDate(0, 0, -q.DaysBack).Format("2006-01-02")

	perPage := q.MaxResults
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	params := url.Values{}
	params.Set("search", search)
	params.Set("filter", "from_publication_date:"+fromDate)
	params.Set("per-page", fmt.Sprintf("%d", perPage))
	params.Set("sort", "publication_date:desc")
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	zap.L().Info("fetching openalex works",
		zap.String("search", search),
		zap.String("from", fromDate),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "openalex: rate limit wait")
	}

	body, err := resilience.DoVal(ctx, c.retry, "openalex.search",
		func(ctx context.Context) ([]byte, error) {
			return c.get(ctx, c.baseURL+"/works?"+params.Encode())
		})
	if err != nil {
		return nil, eris.Wrap(err, "openalex: fetch works")
	}

	var resp workResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "openalex: parse response")
	}

	works := make([]model.OpenAlexWork, 0, len(resp.Results))
	for _, w := range resp.Results {
		parsed, ok := parseWork(w)
		if !ok {
			continue
		}
		works = append(works, parsed)
	}

	zap.L().Info("retrieved openalex works", zap.Int("count", len(works)))
	return works, nil
}

func (c *httpClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openalex: read response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("openalex: unexpected status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}

func parseWork(w work) (model.OpenAlexWork, bool) {
	title := strings.TrimSpace(w.Title)
	if title == "" {
		return model.OpenAlexWork{}, false
	}

	abstract := reconstructAbstract(w.AbstractInvertedIndex)
	if abstract == "" {
		return model.OpenAlexWork{}, false
	}

	// IDs arrive as full URLs like https://openalex.org/W1234.
	id := w.ID
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}

	authors := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		name := a.Author.DisplayName
		if name == "" {
			name = "Unknown"
		}
		authors = append(authors, name)
	}

	var pubDate time.Time
	if w.PublicationDate != "" {
		if d, err := time.Parse("2006-01-02", w.PublicationDate); err == nil {
			pubDate = d
		}
	}

	pdfURL := w.OpenAccess.OAURL
	if pdfURL == "" {
		pdfURL = w.PrimaryLocation.PDFURL
	}

	return model.OpenAlexWork{
		OpenAlexID:     id,
		Title:          title,
		Authors:        authors,
		Abstract:       abstract,
		PublicationDay: pubDate,
		DOI:            strings.TrimPrefix(w.DOI, "https://doi.org/"),
		Venue:          w.PrimaryLocation.Source.DisplayName,
		PDFURL:         pdfURL,
		LandingPageURL: w.DOI,
	}, true
}

// reconstructAbstract rebuilds the abstract text from the inverted index
// OpenAlex ships instead of plain text.
func reconstructAbstract(inverted map[string][]int) string {
	if len(inverted) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var positions []posWord
	for word, ps := range inverted {
		for _, p := range ps {
			positions = append(positions, posWord{pos: p, word: word})
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].pos < positions[j].pos })

	words := make([]string, len(positions))
	for i, pw := range positions {
		words[i] = pw.word
	}
	return strings.Join(words, " ")
}
