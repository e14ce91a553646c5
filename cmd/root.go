package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/literature-agent/internal/config"
	"github.com/sells-group/literature-agent/internal/ledger"
	"github.com/sells-group/literature-agent/internal/pipeline"
	"github.com/sells-group/literature-agent/internal/reflection"
	"github.com/sells-group/literature-agent/internal/store"
	"github.com/sells-group/literature-agent/pkg/arxiv"
	"github.com/sells-group/literature-agent/pkg/cvf"
	"github.com/sells-group/literature-agent/pkg/openalex"
	"github.com/sells-group/literature-agent/pkg/reddit"
	"github.com/sells-group/literature-agent/pkg/vllm"
)

const (
	exitOK        = 0
	exitError     = 1
	exitInterrupt = 130
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "literature-agent",
	Short: "Recurring literature monitoring and summary generation",
	Long:  "Retrieves new Gaussian Splatting papers and community posts, deduplicates against a CSV ledger, generates summaries through a local LLM with a critique/revision pass, and prepares LinkedIn posts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		os.Exit(exitOK)
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "interrupted")
		os.Exit(exitInterrupt)
	}
	os.Exit(exitError)
}

// newLLMClient builds the generation client from config.
func newLLMClient() vllm.Client {
	return vllm.NewClient(cfg.LLM.APIKey,
		vllm.WithBaseURL(cfg.LLM.BaseURL),
		vllm.WithModel(cfg.LLM.Model),
		vllm.WithDefaults(cfg.LLM.Temperature, cfg.LLM.MaxTokens),
		vllm.WithTimeout(time.Duration(cfg.LLM.TimeoutSecs)*time.Second),
	)
}

// buildPipeline wires the source clients, ledger, and reflection controller.
func buildPipeline() (*pipeline.Pipeline, error) {
	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}

	llm := newLLMClient()
	p := pipeline.New(cfg, pipeline.Deps{
		LLM:       llm,
		Arxiv:     arxiv.NewClient(arxiv.WithBaseURL(cfg.Arxiv.BaseURL)),
		OpenAlex:  openalex.NewClient(openalex.WithBaseURL(cfg.OpenAlex.BaseURL), openalex.WithMailto(cfg.OpenAlex.Mailto)),
		CVF:       cvf.NewClient(cvf.WithBaseURL(cfg.CVF.BaseURL)),
		Reddit:    reddit.NewClient(reddit.WithBaseURL(cfg.Reddit.BaseURL), reddit.WithUserAgent(cfg.Reddit.UserAgent)),
		Ledger:    led,
		Reflector: reflection.NewController(llm, cfg.Reflection.MaxIterations, cfg.Reflection.Temperature),
	})
	return p, nil
}

// initStore opens and migrates the run-history database.
func initStore(ctx context.Context) (*store.SQLiteStore, error) {
	if cfg.Store.Path != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755)
	}
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
