// Package model defines the closed set of retrievable item variants and the
// flat record shape consumed by the ledger and generation stages.
package model

import (
	"strings"
	"time"
)

// Source identifies the origin system an item was retrieved from.
type Source string

const (
	SourceArxiv    Source = "arxiv"
	SourceOpenAlex Source = "openalex"
	SourceCVF      Source = "cvf"
	SourceReddit   Source = "reddit"
)

// IsSocial reports whether the source carries social-media posts rather than
// research papers. Generation prompts are shaped differently for the two.
func (s Source) IsSocial() bool {
	return s == SourceReddit
}

// Record is the flattened field set for one item, used for ledger rows and
// prompt construction. Optional fields are empty strings when absent.
type Record struct {
	CanonicalID string `json:"canonical_id"`
	Source      Source `json:"source"`
	ArxivID     string `json:"arxiv_id,omitempty"`
	DOI         string `json:"doi,omitempty"`
	Title       string `json:"title"`
	Authors     string `json:"authors"` // semicolon-joined if multi-valued
	Venue       string `json:"venue"`
	Year        int    `json:"year"`
	URL         string `json:"url"`
	Abstract    string `json:"abstract,omitempty"`
}

// Item is implemented by every retrievable variant. Record flattens the
// variant into the shape the ledger and generation stages consume, including
// its canonical ID.
type Item interface {
	Record() Record
}

// ArxivPaper is a paper from the arXiv Atom API.
type ArxivPaper struct {
	ArxivID         string
	Title           string
	Authors         []string
	Abstract        string
	Published       time.Time
	Updated         time.Time
	PrimaryCategory string
	Categories      []string
	PDFURL          string
}

// Record implements Item. The arXiv identifier is stable across revisions,
// so it is used verbatim as the canonical ID.
func (p ArxivPaper) Record() Record {
	return Record{
		CanonicalID: p.ArxivID,
		Source:      SourceArxiv,
		ArxivID:     p.ArxivID,
		Title:       p.Title,
		Authors:     strings.Join(p.Authors, "; "),
		Venue:       "arXiv",
		Year:        p.Published.Year(),
		URL:         p.PDFURL,
		Abstract:    p.Abstract,
	}
}

// OpenAlexWork is a work from the OpenAlex API.
type OpenAlexWork struct {
	OpenAlexID     string
	Title          string
	Authors        []string
	Abstract       string
	PublicationDay time.Time
	DOI            string
	Venue          string
	PDFURL         string
	LandingPageURL string
}

// Record implements Item. The DOI is preferred as canonical ID when present
// so the same work retrieved via other DOI-bearing sources dedupes; the
// OpenAlex ID is the fallback.
func (w OpenAlexWork) Record() Record {
	id := w.DOI
	if id == "" {
		id = w.OpenAlexID
	}
	url := w.PDFURL
	if url == "" {
		url = w.LandingPageURL
	}
	venue := w.Venue
	if venue == "" {
		venue = "Unknown"
	}
	return Record{
		CanonicalID: id,
		Source:      SourceOpenAlex,
		DOI:         w.DOI,
		Title:       w.Title,
		Authors:     strings.Join(w.Authors, "; "),
		Venue:       venue,
		Year:        w.PublicationDay.Year(),
		URL:         url,
		Abstract:    w.Abstract,
	}
}

// CVFPaper is a paper scraped from a CVF open access conference page. CVF has
// no native identifier, so the canonical ID is assigned by the retrieval
// client from the normalized title hash (see internal/identity).
type CVFPaper struct {
	CanonicalID string
	Title       string
	Authors     []string
	Venue       string
	Year        int
	PDFURL      string
	Abstract    string
}

// Record implements Item.
func (p CVFPaper) Record() Record {
	authors := strings.Join(p.Authors, "; ")
	if authors == "" {
		authors = "Unknown"
	}
	return Record{
		CanonicalID: p.CanonicalID,
		Source:      SourceCVF,
		Title:       p.Title,
		Authors:     authors,
		Venue:       p.Venue,
		Year:        p.Year,
		URL:         p.PDFURL,
		Abstract:    p.Abstract,
	}
}

// RedditPost is a post from the public Reddit JSON API.
type RedditPost struct {
	PostID      string
	Title       string
	Author      string
	Subreddit   string
	SelfText    string
	ExternalURL string
	Permalink   string
	CreatedUTC  time.Time
	Score       int
	NumComments int
}

// Record implements Item. Post IDs are unique within Reddit only, so the
// canonical ID carries a source prefix to avoid cross-source collisions.
func (p RedditPost) Record() Record {
	body := p.SelfText
	if body == "" {
		body = p.Title
	}
	return Record{
		CanonicalID: "reddit_" + p.PostID,
		Source:      SourceReddit,
		Title:       p.Title,
		Authors:     "u/" + p.Author,
		Venue:       "r/" + p.Subreddit,
		Year:        p.CreatedUTC.Year(),
		URL:         "https://reddit.com" + p.Permalink,
		Abstract:    body,
	}
}
