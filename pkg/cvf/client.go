// Package cvf scrapes CVF open access conference pages (CVPR, ICCV, ECCV)
// for papers matching topic keywords.
package cvf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/sells-group/literature-agent/internal/identity"
	"github.com/sells-group/literature-agent/internal/model"
	"github.com/sells-group/literature-agent/internal/resilience"
)

const defaultBaseURL = "https://openaccess.thecvf.com"

// Client scrapes CVF open access.
type Client interface {
	Search(ctx context.Context, q Query) ([]model.CVFPaper, error)
}

// Query describes one search across venues and years.
type Query struct {
	Keywords []string
	Venues   []string
	Years    []int

	// DaysBack, when positive, restricts Years to those reaching into the
	// lookback window. Conference proceedings carry only a year, so the
	// window is applied at year granularity.
	DaysBack int
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default site URL.
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

// NewClient creates a CVF client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Limit(0.5), 1),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search scrapes every venue/year page and returns papers whose titles match
// any keyword. A missing conference page (404) is skipped, not fatal; other
// page failures are logged and the remaining pages still scraped.
func (c *httpClient) Search(ctx context.Context, q Query) ([]model.CVFPaper, error) {
	years := q.Years
	if q.DaysBack > 0 {
		cutoffYear := c.now().AddDate(0, 0, -q.DaysBack).Year()
		currentYear := c.now().Year()
		years = nil
		for _, y := range q.Years {
			if y >= cutoffYear && y <= currentYear {
				years = append(years, y)
			}
		}
		if len(years) == 0 {
			zap.L().Info("no cvf years in lookback window", zap.Int("days_back", q.DaysBack))
			return nil, nil
		}
	}

	var all []model.CVFPaper
	for _, venue := range q.Venues {
		for _, year := range years {
			u := fmt.Sprintf("%s/%s%d", c.baseURL, venue, year)
			zap.L().Info("scraping cvf page", zap.String("venue", venue), zap.Int("year", year))

			if err := c.limiter.Wait(ctx); err != nil {
				return all, eris.Wrap(err, "cvf: rate limit wait")
			}

			page, err := resilience.DoVal(ctx, c.retry, "cvf.fetch_page",
				func(ctx context.Context) ([]byte, error) {
					return c.get(ctx, u)
				})
			if err != nil {
				if eris.Is(err, errPageNotFound) {
					zap.L().Warn("cvf page not found", zap.String("url", u))
				} else {
					zap.L().Error("failed to fetch cvf page", zap.String("url", u), zap.Error(err))
				}
				continue
			}

			papers, err := c.parsePage(page, venue, year, q.Keywords)
			if err != nil {
				zap.L().Error("failed to parse cvf page", zap.String("url", u), zap.Error(err))
				continue
			}
			all = append(all, papers...)
		}
	}

	zap.L().Info("retrieved cvf papers", zap.Int("count", len(all)))
	return all, nil
}

var errPageNotFound = eris.New("cvf: page not found")

func (c *httpClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "cvf: create request")
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "cvf: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, errPageNotFound
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("cvf: unexpected status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// parsePage extracts matching papers from a conference listing. Pages come in
// two layouts: dt.ptitle followed by a dd with author and pdf links (older
// years), and div.papertitle inside a container div (newer years).
func (c *httpClient) parsePage(page []byte, venue string, year int, keywords []string) ([]model.CVFPaper, error) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return nil, eris.Wrap(err, "cvf: parse html")
	}

	papers := c.parseDTLayout(doc, venue, year, keywords)
	if len(papers) == 0 {
		papers = c.parseDivLayout(doc, venue, year, keywords)
	}
	return papers, nil
}

func (c *httpClient) parseDTLayout(doc *html.Node, venue string, year int, keywords []string) []model.CVFPaper {
	var papers []model.CVFPaper
	for _, dt := range findAll(doc, "dt", "ptitle") {
		title := nodeText(dt)
		if !matchesKeywords(title, keywords) {
			continue
		}

		dd := nextElementSibling(dt, "dd")
		if dd == nil {
			continue
		}

		// Author and link markup are split across the dd pair that follows
		// each title.
		pdfLink := findPDFLink(dd)
		authors := authorsIn(dd)
		if next := nextElementSibling(dd, "dd"); next != nil {
			if pdfLink == "" {
				pdfLink = findPDFLink(next)
			}
			if authors == nil {
				authors = authorsIn(next)
			}
		}
		if pdfLink == "" {
			continue
		}

		papers = append(papers, c.newPaper(title, authors, venue, year, pdfLink))
	}
	return papers
}

func (c *httpClient) parseDivLayout(doc *html.Node, venue string, year int, keywords []string) []model.CVFPaper {
	var papers []model.CVFPaper
	for _, div := range findAll(doc, "div", "papertitle") {
		title := nodeText(div)
		if !matchesKeywords(title, keywords) {
			continue
		}

		parent := div.Parent
		if parent == nil {
			continue
		}

		pdfLink := findPDFLink(parent)
		if pdfLink == "" {
			continue
		}

		papers = append(papers, c.newPaper(title, authorsIn(parent), venue, year, pdfLink))
	}
	return papers
}

func (c *httpClient) newPaper(title string, authors []string, venue string, year int, pdfLink string) model.CVFPaper {
	if !strings.HasPrefix(pdfLink, "http") {
		pdfLink = c.baseURL + "/" + strings.TrimPrefix(pdfLink, "/")
	}
	return model.CVFPaper{
		CanonicalID: identity.CompositeHash(title, year, venue),
		Title:       title,
		Authors:     authors,
		Venue:       venue,
		Year:        year,
		PDFURL:      pdfLink,
	}
}

func matchesKeywords(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// findAll returns element nodes with the given tag carrying the class.
func findAll(n *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag && hasClass(n, class) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attrVal(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// nodeText collects and flattens all text under a node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func nextElementSibling(n *html.Node, tag string) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && s.Data == tag {
			return s
		}
	}
	return nil
}

func findPDFLink(n *html.Node) string {
	for _, a := range findAllTags(n, "a") {
		href := attrVal(a, "href")
		if strings.Contains(strings.ToLower(href), "pdf") {
			return href
		}
	}
	return ""
}

func findAllTags(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func authorsIn(n *html.Node) []string {
	for _, div := range findAll(n, "div", "authors") {
		text := nodeText(div)
		if text == "" {
			continue
		}
		parts := strings.Split(text, ",")
		authors := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				authors = append(authors, p)
			}
		}
		return authors
	}
	return nil
}
