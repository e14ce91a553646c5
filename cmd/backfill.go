package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/literature-agent/internal/pipeline"
	"github.com/sells-group/literature-agent/internal/report"
)

var (
	backfillDays       int
	backfillMaxResults int
	backfillBatchSize  int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Process a historical window of items in batches",
	Long:  "Retrieves everything in the given window in one pass and processes the new items in batches, checkpointing progress after each batch. Intended for catching up after downtime; it never publishes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if backfillDays <= 0 {
			return eris.New("backfill: --days must be > 0")
		}
		if backfillBatchSize <= 0 {
			return eris.New("backfill: --batch-size must be > 0")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		p, err := buildPipeline()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.CreateRun(ctx, "backfill")
		if err != nil {
			return err
		}

		items, err := p.RetrieveAll(ctx, backfillDays, backfillMaxResults)
		if err != nil {
			if ferr := st.FailRun(ctx, run.ID, err); ferr != nil {
				zap.L().Error("failed to record run failure", zap.Error(ferr))
			}
			return err
		}
		fresh, skipped := p.FilterNew(items)
		fmt.Printf("Retrieved %d item(s), %d new after dedup\n", len(items), len(fresh))

		var results []report.Result
		for start := 0; start < len(fresh); start += backfillBatchSize {
			end := min(start+backfillBatchSize, len(fresh))
			zap.L().Info("processing backfill batch",
				zap.Int("from", start),
				zap.Int("to", end),
				zap.Int("total", len(fresh)),
			)

			for _, item := range fresh[start:end] {
				res, err := p.ProcessItem(ctx, item)
				if err != nil {
					if ctx.Err() != nil || eris.Is(err, pipeline.ErrLedgerSave) {
						if ferr := st.FailRun(ctx, run.ID, err); ferr != nil {
							zap.L().Error("failed to record run failure", zap.Error(ferr))
						}
						return err
					}
					zap.L().Error("failed to process item",
						zap.String("title", item.Record().Title),
						zap.Error(err),
					)
					continue
				}
				results = append(results, *res)
			}

			fmt.Printf("Checkpoint: %d/%d item(s) processed\n", end, len(fresh))
		}

		if len(results) > 0 {
			paths, err := report.NewWriter(cfg.Output.Dir).WriteAll(results)
			if err != nil {
				if ferr := st.FailRun(ctx, run.ID, err); ferr != nil {
					zap.L().Error("failed to record run failure", zap.Error(ferr))
				}
				return err
			}
			fmt.Printf("Report written to %s\n", paths.Markdown)
		}

		if err := st.CompleteRun(ctx, run.ID, len(results), skipped); err != nil {
			zap.L().Error("failed to record run completion", zap.Error(err))
		}

		fmt.Printf("Backfill complete: %d processed, %d skipped\n", len(results), skipped)
		return nil
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillDays, "days", 0, "days back to backfill (required)")
	backfillCmd.Flags().IntVar(&backfillMaxResults, "max-results", 200, "max results per source")
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 10, "items per checkpoint batch")
	_ = backfillCmd.MarkFlagRequired("days")
	rootCmd.AddCommand(backfillCmd)
}
