package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/literature-agent/internal/config"
	"github.com/sells-group/literature-agent/internal/ledger"
	"github.com/sells-group/literature-agent/internal/model"
	"github.com/sells-group/literature-agent/internal/reflection"
	"github.com/sells-group/literature-agent/pkg/arxiv"
	"github.com/sells-group/literature-agent/pkg/cvf"
	"github.com/sells-group/literature-agent/pkg/openalex"
	"github.com/sells-group/literature-agent/pkg/reddit"
	"github.com/sells-group/literature-agent/pkg/vllm"
)

type fakeArxiv struct {
	fn func(q arxiv.Query) ([]model.ArxivPaper, error)
}

func (f fakeArxiv) Search(_ context.Context, q arxiv.Query) ([]model.ArxivPaper, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(q)
}

type fakeOpenAlex struct {
	fn func(q openalex.Query) ([]model.OpenAlexWork, error)
}

func (f fakeOpenAlex) Search(_ context.Context, q openalex.Query) ([]model.OpenAlexWork, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(q)
}

type fakeCVF struct {
	fn func(q cvf.Query) ([]model.CVFPaper, error)
}

func (f fakeCVF) Search(_ context.Context, q cvf.Query) ([]model.CVFPaper, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(q)
}

type fakeReddit struct {
	fn func(q reddit.Query) ([]model.RedditPost, error)
}

func (f fakeReddit) Search(_ context.Context, q reddit.Query) ([]model.RedditPost, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(q)
}

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) ChatCompletion(_ context.Context, _ vllm.ChatCompletionRequest) (*vllm.ChatCompletionResponse, error) {
	panic("not used")
}

func (f *fakeLLM) GenerateWithSystem(_ context.Context, _, user string, _ ...vllm.GenerateOption) (string, error) {
	f.prompts = append(f.prompts, user)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Model() string { return "test-model" }

type fakeReflector struct {
	err   error
	calls int
}

func (f *fakeReflector) Reflect(_ context.Context, in reflection.Input) (model.Outputs, error) {
	f.calls++
	if f.err != nil {
		return model.Outputs{}, f.err
	}
	return in.Drafts, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Search: config.SearchConfig{Keywords: []string{"gaussian splatting"}},
		CVF: config.CVFConfig{
			Venues: []string{"CVPR"},
			Years:  []int{2024},
		},
		Reddit: config.RedditConfig{Subreddits: []string{"GaussianSplatting"}},
		Retrieval: config.RetrievalConfig{
			DefaultDaysBack:     7,
			MaxResultsPerSource: 10,
			TargetItems:         3,
			MaxBatchSize:        50,
		},
	}
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)
	return l
}

func paper(id, title string) model.ArxivPaper {
	return model.ArxivPaper{
		ArxivID:   id,
		Title:     title,
		Authors:   []string{"Jane Doe"},
		Abstract:  "We present a method.",
		Published: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestPipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()
	if deps.LLM == nil {
		deps.LLM = &fakeLLM{response: "generated text"}
	}
	if deps.Ledger == nil {
		deps.Ledger = testLedger(t)
	}
	if deps.Reflector == nil {
		deps.Reflector = &fakeReflector{}
	}
	if deps.Arxiv == nil {
		deps.Arxiv = fakeArxiv{}
	}
	if deps.OpenAlex == nil {
		deps.OpenAlex = fakeOpenAlex{}
	}
	if deps.CVF == nil {
		deps.CVF = fakeCVF{}
	}
	if deps.Reddit == nil {
		deps.Reddit = fakeReddit{}
	}
	return New(testConfig(), deps)
}

func TestRetrieveAllCombinesSources(t *testing.T) {
	p := newTestPipeline(t, Deps{
		Arxiv: fakeArxiv{fn: func(q arxiv.Query) ([]model.ArxivPaper, error) {
			assert.Equal(t, []string{"gaussian splatting"}, q.Keywords)
			assert.Equal(t, 7, q.DaysBack)
			return []model.ArxivPaper{paper("2406.1v1", "Paper A")}, nil
		}},
		Reddit: fakeReddit{fn: func(q reddit.Query) ([]model.RedditPost, error) {
			return []model.RedditPost{{PostID: "abc", Title: "Post B", SelfText: "body"}}, nil
		}},
	})

	items, err := p.RetrieveAll(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2406.1v1", items[0].Record().CanonicalID)
	assert.Equal(t, "reddit_abc", items[1].Record().CanonicalID)
}

func TestRetrieveAllDegradesFailedSource(t *testing.T) {
	p := newTestPipeline(t, Deps{
		Arxiv: fakeArxiv{fn: func(arxiv.Query) ([]model.ArxivPaper, error) {
			return nil, eris.New("arxiv is down")
		}},
		OpenAlex: fakeOpenAlex{fn: func(openalex.Query) ([]model.OpenAlexWork, error) {
			return []model.OpenAlexWork{{
				OpenAlexID: "W1",
				Title:      "Still Here",
				Abstract:   "abstract",
			}}, nil
		}},
	})

	items, err := p.RetrieveAll(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "W1", items[0].Record().CanonicalID)
}

func TestFilterNewSkipsProcessed(t *testing.T) {
	l := testLedger(t)
	l.AddEntry(model.Record{CanonicalID: "2406.1v1"}, "m", model.Outputs{})

	p := newTestPipeline(t, Deps{Ledger: l})
	fresh, skipped := p.FilterNew([]model.Item{
		paper("2406.1v1", "Seen"),
		paper("2406.2v1", "New"),
	})
	require.Len(t, fresh, 1)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, "2406.2v1", fresh[0].Record().CanonicalID)
}

func TestGenerateDraftsNoAbstract(t *testing.T) {
	p := newTestPipeline(t, Deps{})
	_, err := p.GenerateDrafts(context.Background(), model.Record{Title: "No Abstract"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoAbstract))
}

func TestGenerateDraftsFansOut(t *testing.T) {
	llm := &fakeLLM{response: "  generated text\n"}
	p := newTestPipeline(t, Deps{LLM: llm})

	out, err := p.GenerateDrafts(context.Background(), model.Record{
		Source:   model.SourceArxiv,
		Title:    "Paper",
		Abstract: "abstract",
	})
	require.NoError(t, err)
	assert.Equal(t, "generated text", out.AbstractRewrite)
	assert.Equal(t, "generated text", out.ProblemSolved)
	assert.Equal(t, "generated text", out.LinkedInPost)
	assert.Len(t, llm.prompts, 3)
}

func TestGenerateDraftsSocialPromptShape(t *testing.T) {
	llm := &fakeLLM{response: "out"}
	p := newTestPipeline(t, Deps{LLM: llm})

	rec := model.RedditPost{PostID: "x", Title: "Demo", Author: "alice", Subreddit: "GaussianSplatting", SelfText: "look at this"}.Record()
	_, err := p.GenerateDrafts(context.Background(), rec)
	require.NoError(t, err)

	joined := ""
	for _, pr := range llm.prompts {
		joined += pr + "\n"
	}
	assert.Contains(t, joined, "Post Title: Demo")
	assert.NotContains(t, joined, "Paper Title:")
}

func TestProcessItemAddsLedgerEntryAndSaves(t *testing.T) {
	l := testLedger(t)
	p := newTestPipeline(t, Deps{Ledger: l})

	res, err := p.ProcessItem(context.Background(), paper("2406.1v1", "Paper A"))
	require.NoError(t, err)
	assert.Equal(t, "2406.1v1", res.Record.CanonicalID)
	assert.Equal(t, "test-model", res.ModelName)

	assert.True(t, l.IsProcessed("2406.1v1"))
	assert.Equal(t, 1, l.SessionCount())

	// Save ran: reopening from disk sees the entry.
	reopened, err := ledger.Open(l.Path())
	require.NoError(t, err)
	assert.True(t, reopened.IsProcessed("2406.1v1"))
}

func TestProcessItemReflectionFailureKeepsDrafts(t *testing.T) {
	refl := &fakeReflector{err: eris.New("critic endpoint down")}
	p := newTestPipeline(t, Deps{
		LLM:       &fakeLLM{response: "draft"},
		Reflector: refl,
	})

	res, err := p.ProcessItem(context.Background(), paper("2406.1v1", "Paper A"))
	require.NoError(t, err)
	assert.Equal(t, 1, refl.calls)
	assert.Equal(t, "draft", res.Outputs.AbstractRewrite)
}

func TestProcessItemGenerationFailure(t *testing.T) {
	p := newTestPipeline(t, Deps{
		LLM: &fakeLLM{err: eris.New("endpoint down")},
	})

	_, err := p.ProcessItem(context.Background(), paper("2406.1v1", "Paper A"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate drafts")
}

func TestRunWidensBatchUntilTarget(t *testing.T) {
	l := testLedger(t)
	l.AddEntry(model.Record{CanonicalID: "2406.old1"}, "m", model.Outputs{})
	l.AddEntry(model.Record{CanonicalID: "2406.old2"}, "m", model.Outputs{})

	var batches []int
	p := newTestPipeline(t, Deps{
		Ledger: l,
		Arxiv: fakeArxiv{fn: func(q arxiv.Query) ([]model.ArxivPaper, error) {
			batches = append(batches, q.MaxResults)
			papers := []model.ArxivPaper{paper("2406.old1", "Seen"), paper("2406.old2", "Seen Too")}
			// A new paper only appears once the batch widens.
			if q.MaxResults >= 20 {
				papers = append(papers, paper("2406.new1", "Fresh"))
			}
			return papers, nil
		}},
	})

	sum, err := p.Run(context.Background(), Options{DaysBack: 7, MaxResults: 10, Target: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, batches)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, "2406.new1", sum.Results[0].Record.CanonicalID)
	assert.Equal(t, 2, sum.Skipped)
}

func TestRunStopsAtCeilingWithNoNewItems(t *testing.T) {
	l := testLedger(t)
	l.AddEntry(model.Record{CanonicalID: "2406.old1"}, "m", model.Outputs{})

	attempts := 0
	p := newTestPipeline(t, Deps{
		Ledger: l,
		Arxiv: fakeArxiv{fn: func(q arxiv.Query) ([]model.ArxivPaper, error) {
			attempts++
			return []model.ArxivPaper{paper("2406.old1", "Seen")}, nil
		}},
	})

	sum, err := p.Run(context.Background(), Options{DaysBack: 7, MaxResults: 50, Target: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sum.Results)
	assert.Equal(t, 1, sum.Skipped)
}

func TestRunStopsOnEmptyRetrieval(t *testing.T) {
	attempts := 0
	p := newTestPipeline(t, Deps{
		Arxiv: fakeArxiv{fn: func(arxiv.Query) ([]model.ArxivPaper, error) {
			attempts++
			return nil, nil
		}},
	})

	sum, err := p.Run(context.Background(), Options{DaysBack: 7, MaxResults: 10, Target: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sum.Results)
}

func TestRunTruncatesToTarget(t *testing.T) {
	p := newTestPipeline(t, Deps{
		Arxiv: fakeArxiv{fn: func(arxiv.Query) ([]model.ArxivPaper, error) {
			return []model.ArxivPaper{
				paper("2406.1v1", "A"), paper("2406.2v1", "B"), paper("2406.3v1", "C"),
			}, nil
		}},
	})

	sum, err := p.Run(context.Background(), Options{DaysBack: 7, MaxResults: 10, Target: 2})
	require.NoError(t, err)
	assert.Len(t, sum.Results, 2)
}

func TestRunSkipsItemsWithoutAbstract(t *testing.T) {
	noAbstract := model.ArxivPaper{ArxivID: "2406.na", Title: "Empty", Published: time.Now()}
	p := newTestPipeline(t, Deps{
		Arxiv: fakeArxiv{fn: func(arxiv.Query) ([]model.ArxivPaper, error) {
			return []model.ArxivPaper{noAbstract, paper("2406.ok", "Fine")}, nil
		}},
	})

	sum, err := p.Run(context.Background(), Options{DaysBack: 7, MaxResults: 10, Target: 2})
	require.NoError(t, err)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, "2406.ok", sum.Results[0].Record.CanonicalID)
}
