// Package pipeline orchestrates retrieval, dedup, generation, reflection,
// and ledger updates for one run.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/literature-agent/internal/config"
	"github.com/sells-group/literature-agent/internal/identity"
	"github.com/sells-group/literature-agent/internal/ledger"
	"github.com/sells-group/literature-agent/internal/model"
	"github.com/sells-group/literature-agent/internal/reflection"
	"github.com/sells-group/literature-agent/internal/report"
	"github.com/sells-group/literature-agent/pkg/arxiv"
	"github.com/sells-group/literature-agent/pkg/cvf"
	"github.com/sells-group/literature-agent/pkg/openalex"
	"github.com/sells-group/literature-agent/pkg/reddit"
	"github.com/sells-group/literature-agent/pkg/vllm"
)

// ErrNoAbstract marks an item with nothing to summarize. The pipeline skips
// such items rather than failing the run.
var ErrNoAbstract = eris.New("pipeline: item has no abstract")

// ErrLedgerSave marks a failed ledger write. It aborts the run: processing
// further items without durable dedup would double-publish them next run.
var ErrLedgerSave = eris.New("pipeline: ledger save failed")

// Reflector runs the critique and revision pass over drafts.
type Reflector interface {
	Reflect(ctx context.Context, in reflection.Input) (model.Outputs, error)
}

// Deps carries the pipeline's collaborators.
type Deps struct {
	LLM       vllm.Client
	Arxiv     arxiv.Client
	OpenAlex  openalex.Client
	CVF       cvf.Client
	Reddit    reddit.Client
	Ledger    *ledger.Ledger
	Reflector Reflector
}

// Options controls one run.
type Options struct {
	DaysBack   int
	MaxResults int // initial per-source batch size
	Target     int // new items to process before stopping retrieval
}

// Pipeline wires the source clients, the ledger, and the generation stages.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	now  func() time.Time
}

// New creates a pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps, now: time.Now}
}

// RetrieveAll fans out to every source concurrently and joins the results. A
// failing source is logged and contributes zero items; only context
// cancellation is fatal.
func (p *Pipeline) RetrieveAll(ctx context.Context, daysBack, maxResults int) ([]model.Item, error) {
	zap.L().Info("starting retrieval from all sources",
		zap.Int("days_back", daysBack),
		zap.Int("max_results", maxResults),
	)

	var (
		arxivPapers   []model.ArxivPaper
		openalexWorks []model.OpenAlexWork
		cvfPapers     []model.CVFPaper
		redditPosts   []model.RedditPost
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(p.sourceTask(gctx, "arxiv", func(ctx context.Context) error {
		var err error
		arxivPapers, err = p.deps.Arxiv.Search(ctx, arxiv.Query{
			Keywords:   p.cfg.Search.Keywords,
			DaysBack:   daysBack,
			MaxResults: maxResults,
		})
		return err
	}))
	g.Go(p.sourceTask(gctx, "openalex", func(ctx context.Context) error {
		var err error
		openalexWorks, err = p.deps.OpenAlex.Search(ctx, openalex.Query{
			Keywords:   p.cfg.Search.Keywords,
			DaysBack:   daysBack,
			MaxResults: maxResults,
		})
		return err
	}))
	g.Go(p.sourceTask(gctx, "cvf", func(ctx context.Context) error {
		var err error
		cvfPapers, err = p.deps.CVF.Search(ctx, cvf.Query{
			Keywords: p.cfg.Search.Keywords,
			Venues:   p.cfg.CVF.Venues,
			Years:    p.cfg.CVF.Years,
			DaysBack: daysBack,
		})
		return err
	}))
	g.Go(p.sourceTask(gctx, "reddit", func(ctx context.Context) error {
		var err error
		redditPosts, err = p.deps.Reddit.Search(ctx, reddit.Query{
			Subreddits: p.cfg.Reddit.Subreddits,
			DaysBack:   daysBack,
			MaxResults: maxResults,
			Keywords:   p.cfg.Search.Keywords,
		})
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: retrieval cancelled")
	}

	items := make([]model.Item, 0, len(arxivPapers)+len(openalexWorks)+len(cvfPapers)+len(redditPosts))
	for _, it := range arxivPapers {
		items = append(items, it)
	}
	for _, it := range openalexWorks {
		items = append(items, it)
	}
	for _, it := range cvfPapers {
		items = append(items, it)
	}
	for _, it := range redditPosts {
		items = append(items, it)
	}

	zap.L().Info("retrieval complete", zap.Int("total_items", len(items)))
	return items, nil
}

// sourceTask wraps a source search so its failure degrades to zero items
// instead of failing the join.
func (p *Pipeline) sourceTask(ctx context.Context, source string, fn func(ctx context.Context) error) func() error {
	return func() error {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Error("source retrieval failed, continuing without it",
				zap.String("source", source),
				zap.Error(err),
			)
		}
		return nil
	}
}

// FilterNew drops items whose canonical ID is already in the ledger. The
// second return is the number skipped.
func (p *Pipeline) FilterNew(items []model.Item) ([]model.Item, int) {
	var fresh []model.Item
	for _, item := range items {
		id := identity.Resolve(item.Record())
		if p.deps.Ledger.IsProcessed(id) {
			zap.L().Debug("skipping already processed item", zap.String("canonical_id", id))
			continue
		}
		fresh = append(fresh, item)
	}
	skipped := len(items) - len(fresh)
	zap.L().Info("filtered new items",
		zap.Int("new", len(fresh)),
		zap.Int("skipped", skipped),
	)
	return fresh, skipped
}

// GenerateDrafts produces the three output fields concurrently. Items with
// no abstract return ErrNoAbstract.
func (p *Pipeline) GenerateDrafts(ctx context.Context, rec model.Record) (model.Outputs, error) {
	if rec.Abstract == "" {
		return model.Outputs{}, ErrNoAbstract
	}

	zap.L().Info("generating drafts", zap.String("title", rec.Title))

	var out model.Outputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := p.deps.LLM.GenerateWithSystem(gctx, generationSystemPrompt, abstractRewritePrompt(rec))
		out.AbstractRewrite = strings.TrimSpace(text)
		return err
	})
	g.Go(func() error {
		text, err := p.deps.LLM.GenerateWithSystem(gctx, generationSystemPrompt, problemStatementPrompt(rec))
		out.ProblemSolved = strings.TrimSpace(text)
		return err
	})
	g.Go(func() error {
		text, err := p.deps.LLM.GenerateWithSystem(gctx, generationSystemPrompt, linkedInPostPrompt(rec))
		out.LinkedInPost = strings.TrimSpace(text)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Outputs{}, eris.Wrapf(err, "pipeline: generate drafts for %q", rec.Title)
	}
	return out, nil
}

// ProcessItem runs one item through generation, reflection, and the ledger.
// The ledger is saved immediately so a crash later in the run loses at most
// the in-flight item. Reflection failure degrades to the drafts; generation
// failure fails the item.
func (p *Pipeline) ProcessItem(ctx context.Context, item model.Item) (*report.Result, error) {
	rec := item.Record()
	rec.CanonicalID = identity.Resolve(rec)

	zap.L().Info("processing item",
		zap.String("canonical_id", rec.CanonicalID),
		zap.String("title", rec.Title),
	)

	drafts, err := p.GenerateDrafts(ctx, rec)
	if err != nil {
		return nil, err
	}

	final, err := p.deps.Reflector.Reflect(ctx, reflection.Input{
		Title:    rec.Title,
		Authors:  rec.Authors,
		Venue:    rec.Venue,
		Year:     rec.Year,
		Abstract: rec.Abstract,
		Drafts:   drafts,
	})
	if err != nil {
		zap.L().Error("reflection failed, keeping drafts",
			zap.String("title", rec.Title),
			zap.Error(err),
		)
		final = drafts
	}

	p.deps.Ledger.AddEntry(rec, p.deps.LLM.Model(), final)
	if err := p.deps.Ledger.Save(); err != nil {
		zap.L().Error("ledger save failed", zap.Error(err))
		return nil, eris.Wrapf(ErrLedgerSave, "after %q: %v", rec.CanonicalID, err)
	}

	return &report.Result{
		Record:      rec,
		Outputs:     final,
		ModelName:   p.deps.LLM.Model(),
		ProcessedAt: p.now(),
	}, nil
}

// Summary reports what a run did.
type Summary struct {
	Results []report.Result
	Skipped int
}

// Run executes the volume-adaptive pipeline: retrieve, widen the batch until
// enough new items are found, then process them strictly sequentially.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = p.cfg.Retrieval.DefaultDaysBack
	}
	target := opts.Target
	if target <= 0 {
		target = p.cfg.Retrieval.TargetItems
	}
	batchSize := opts.MaxResults
	if batchSize <= 0 {
		batchSize = p.cfg.Retrieval.MaxResultsPerSource
	}
	maxBatch := p.cfg.Retrieval.MaxBatchSize

	zap.L().Info("starting literature pipeline",
		zap.Int("days_back", daysBack),
		zap.Int("target", target),
		zap.Int("batch_size", batchSize),
	)

	var (
		fresh   []model.Item
		skipped int
	)
	for attempt := 1; ; attempt++ {
		zap.L().Info("retrieval attempt",
			zap.Int("attempt", attempt),
			zap.Int("batch_size", batchSize),
		)

		items, err := p.RetrieveAll(ctx, daysBack, batchSize)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			zap.L().Warn("no items retrieved, stopping retrieval")
			break
		}

		fresh, skipped = p.FilterNew(items)
		if len(fresh) >= target {
			zap.L().Info("target reached", zap.Int("new_items", len(fresh)))
			break
		}
		if batchSize >= maxBatch {
			if len(fresh) == 0 {
				zap.L().Warn("reached max batch size with no new items, stopping")
			}
			break
		}

		batchSize = min(batchSize*2, maxBatch)
		zap.L().Info("widening retrieval batch",
			zap.Int("new_so_far", len(fresh)),
			zap.Int("next_batch_size", batchSize),
		)
	}

	if len(fresh) == 0 {
		zap.L().Info("no new items to process")
		return &Summary{Skipped: skipped}, nil
	}
	if len(fresh) > target {
		fresh = fresh[:target]
	}

	// Sequential by design: the generation endpoint handles one item's worth
	// of load at a time.
	var results []report.Result
	for _, item := range fresh {
		res, err := p.ProcessItem(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if eris.Is(err, ErrLedgerSave) {
				return nil, err
			}
			if eris.Is(err, ErrNoAbstract) {
				zap.L().Warn("skipping item without abstract",
					zap.String("title", item.Record().Title),
				)
				continue
			}
			zap.L().Error("failed to process item",
				zap.String("title", item.Record().Title),
				zap.Error(err),
			)
			continue
		}
		results = append(results, *res)
	}

	zap.L().Info("pipeline complete",
		zap.Int("processed", len(results)),
		zap.Int("skipped", skipped),
	)
	return &Summary{Results: results, Skipped: skipped}, nil
}
