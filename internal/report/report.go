// Package report writes per-run result files: a human-readable markdown
// report and a machine-readable JSON dump.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/literature-agent/internal/model"
)

// Result is one fully processed item.
type Result struct {
	Record      model.Record  `json:"record"`
	Outputs     model.Outputs `json:"outputs"`
	ModelName   string        `json:"model_name"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// Paths locates the files a run produced.
type Paths struct {
	Markdown string
	JSON     string
}

// Writer writes run reports into an output directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a report writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// WriteAll writes the markdown report and JSON results for one run. File
// names carry a timestamp so successive runs never clobber each other.
func (w *Writer) WriteAll(results []Result) (Paths, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Paths{}, eris.Wrap(err, "report: create output dir")
	}

	stamp := w.now().Format("2006-01-02_150405")
	paths := Paths{
		Markdown: filepath.Join(w.dir, fmt.Sprintf("report_%s.md", stamp)),
		JSON:     filepath.Join(w.dir, fmt.Sprintf("results_%s.json", stamp)),
	}

	if err := os.WriteFile(paths.Markdown, []byte(w.renderMarkdown(results)), 0o644); err != nil {
		return Paths{}, eris.Wrap(err, "report: write markdown")
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return Paths{}, eris.Wrap(err, "report: marshal results")
	}
	if err := os.WriteFile(paths.JSON, data, 0o644); err != nil {
		return Paths{}, eris.Wrap(err, "report: write json")
	}

	zap.L().Info("wrote run report",
		zap.String("markdown", paths.Markdown),
		zap.String("json", paths.JSON),
		zap.Int("items", len(results)),
	)
	return paths, nil
}

func (w *Writer) renderMarkdown(results []Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Literature Agent Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", w.now().Format("2 January 2006 15:04 MST"))
	fmt.Fprintf(&sb, "Items processed: %d\n", len(results))

	for i, r := range results {
		rec := r.Record
		fmt.Fprintf(&sb, "\n---\n\n## %d. %s\n\n", i+1, rec.Title)
		fmt.Fprintf(&sb, "- **Source**: %s\n", rec.Source)
		fmt.Fprintf(&sb, "- **Authors**: %s\n", rec.Authors)
		fmt.Fprintf(&sb, "- **Venue**: %s (%d)\n", rec.Venue, rec.Year)
		if rec.URL != "" {
			fmt.Fprintf(&sb, "- **URL**: %s\n", rec.URL)
		}
		fmt.Fprintf(&sb, "- **Model**: %s\n", r.ModelName)

		fmt.Fprintf(&sb, "\n### Abstract Rewrite\n\n%s\n", r.Outputs.AbstractRewrite)
		fmt.Fprintf(&sb, "\n### Problem Addressed\n\n%s\n", r.Outputs.ProblemSolved)
		fmt.Fprintf(&sb, "\n### LinkedIn Post\n\n%s\n", r.Outputs.LinkedInPost)
	}
	return sb.String()
}
