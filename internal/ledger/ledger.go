// Package ledger persists the set of processed items as a CSV table and
// answers membership queries that keep the pipeline at-most-once per item.
package ledger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/literature-agent/internal/model"
)

// Columns is the fixed persisted column order. Absent optional fields render
// as empty strings, never omitted columns.
var Columns = []string{
	"canonical_id",
	"source",
	"arxiv_id",
	"doi",
	"title",
	"authors",
	"venue",
	"year",
	"url",
	"discovered_date",
	"processed_date",
	"model_name",
	"abstract_rewrite",
	"problem_solved",
	"linkedin_post",
}

// Entry is one processed-item row.
type Entry struct {
	CanonicalID     string
	Source          string
	ArxivID         string
	DOI             string
	Title           string
	Authors         string
	Venue           string
	Year            string
	URL             string
	DiscoveredDate  string
	ProcessedDate   string
	ModelName       string
	AbstractRewrite string
	ProblemSolved   string
	LinkedInPost    string
}

func (e Entry) row() []string {
	return []string{
		e.CanonicalID, e.Source, e.ArxivID, e.DOI, e.Title, e.Authors,
		e.Venue, e.Year, e.URL, e.DiscoveredDate, e.ProcessedDate,
		e.ModelName, e.AbstractRewrite, e.ProblemSolved, e.LinkedInPost,
	}
}

func entryFromRow(row []string) Entry {
	// Tolerate short rows from hand-edited files; missing cells stay empty.
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return Entry{
		CanonicalID:     get(0),
		Source:          get(1),
		ArxivID:         get(2),
		DOI:             get(3),
		Title:           get(4),
		Authors:         get(5),
		Venue:           get(6),
		Year:            get(7),
		URL:             get(8),
		DiscoveredDate:  get(9),
		ProcessedDate:   get(10),
		ModelName:       get(11),
		AbstractRewrite: get(12),
		ProblemSolved:   get(13),
		LinkedInPost:    get(14),
	}
}

// Ledger owns the in-memory entry sequence and the membership set. It is
// mutated only from the pipeline's single execution goroutine; the persisted
// file is owned exclusively by one running process at a time.
type Ledger struct {
	path      string
	entries   []Entry
	processed map[string]struct{}
	loaded    int // entry count at load time, for session accounting
}

// Open loads the ledger at path. A missing file yields an empty ledger; a
// file that exists but cannot be read or parsed is a fatal error, because
// silently starting empty would reprocess the entire corpus.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		processed: make(map[string]struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "ledger: create directory for %s", path)
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		zap.L().Info("ledger: no existing file, starting empty", zap.String("path", path))
		return l, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: parse %s", path)
	}

	for i, row := range rows {
		if i == 0 {
			// Header row.
			continue
		}
		e := entryFromRow(row)
		l.entries = append(l.entries, e)
		if e.CanonicalID != "" {
			l.processed[e.CanonicalID] = struct{}{}
		}
	}
	l.loaded = len(l.entries)

	zap.L().Info("ledger: loaded",
		zap.String("path", path),
		zap.Int("processed_ids", len(l.processed)),
	)
	return l, nil
}

// IsProcessed reports whether the canonical ID has already been processed,
// either in a prior run or earlier in this session.
func (l *Ledger) IsProcessed(canonicalID string) bool {
	_, ok := l.processed[canonicalID]
	return ok
}

// AddEntry appends a processed item. Both timestamps are stamped with the
// same wall-clock instant; there is no separate discovered-earlier tracking
// within a run. AddEntry never deduplicates; callers must check IsProcessed
// first to honor the at-most-once contract.
func (l *Ledger) AddEntry(rec model.Record, modelName string, out model.Outputs) {
	now := time.Now().Format(time.RFC3339)

	year := ""
	if rec.Year != 0 {
		year = strconv.Itoa(rec.Year)
	}

	e := Entry{
		CanonicalID:     rec.CanonicalID,
		Source:          string(rec.Source),
		ArxivID:         rec.ArxivID,
		DOI:             rec.DOI,
		Title:           rec.Title,
		Authors:         rec.Authors,
		Venue:           rec.Venue,
		Year:            year,
		URL:             rec.URL,
		DiscoveredDate:  now,
		ProcessedDate:   now,
		ModelName:       modelName,
		AbstractRewrite: out.AbstractRewrite,
		ProblemSolved:   out.ProblemSolved,
		LinkedInPost:    out.LinkedInPost,
	}

	l.entries = append(l.entries, e)
	l.processed[e.CanonicalID] = struct{}{}
}

// Save writes the full table durably. The table is written to a temp file in
// the same directory and renamed over the final path, so a crash mid-write
// leaves the previous durable copy intact.
func (l *Ledger) Save() error {
	tmp := l.path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "ledger: create temp file %s", tmp)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "ledger: write header")
	}
	for _, e := range l.entries {
		if err := w.Write(e.row()); err != nil {
			f.Close() //nolint:errcheck
			return eris.Wrap(err, "ledger: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "ledger: flush")
	}

	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "ledger: sync temp file")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "ledger: close temp file")
	}

	if err := os.Rename(tmp, l.path); err != nil {
		return eris.Wrapf(err, "ledger: replace %s", l.path)
	}

	zap.L().Info("ledger: saved",
		zap.String("path", l.path),
		zap.Int("entries", len(l.entries)),
	)
	return nil
}

// Len returns the total number of entries (loaded plus session).
func (l *Ledger) Len() int {
	return len(l.entries)
}

// SessionCount returns how many entries were added since Open.
func (l *Ledger) SessionCount() int {
	return len(l.entries) - l.loaded
}

// Entries returns a copy of all rows, oldest first.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Path returns the ledger's backing file path.
func (l *Ledger) Path() string {
	return l.path
}
