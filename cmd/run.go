package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/literature-agent/internal/pipeline"
	"github.com/sells-group/literature-agent/internal/publish"
	"github.com/sells-group/literature-agent/internal/report"
)

var (
	runDays       int
	runMaxResults int
	runTarget     int
	runNoPublish  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full retrieval and generation run",
	Long:  "Retrieves recent items from all sources, processes the new ones through generation and reflection, writes the report files, and prepares LinkedIn posts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		run, err := st.CreateRun(ctx, "run")
		if err != nil {
			return err
		}

		summary, err := p.Run(ctx, pipeline.Options{
			DaysBack:   runDays,
			MaxResults: runMaxResults,
			Target:     runTarget,
		})
		if err != nil {
			if ferr := st.FailRun(ctx, run.ID, err); ferr != nil {
				zap.L().Error("failed to record run failure", zap.Error(ferr))
			}
			return err
		}

		if len(summary.Results) > 0 {
			paths, err := report.NewWriter(cfg.Output.Dir).WriteAll(summary.Results)
			if err != nil {
				if ferr := st.FailRun(ctx, run.ID, err); ferr != nil {
					zap.L().Error("failed to record run failure", zap.Error(ferr))
				}
				return err
			}
			fmt.Printf("Report written to %s\n", paths.Markdown)
			fmt.Printf("Results written to %s\n", paths.JSON)

			if !runNoPublish {
				publisher := publish.NewPublisher(cfg.LinkedIn.DryRun)
				for _, post := range publisher.Publish(summary.Results) {
					fmt.Printf("LinkedIn post %s: %s\n", post.CanonicalID, post.Status)
				}
			}
		}

		if err := st.CompleteRun(ctx, run.ID, len(summary.Results), summary.Skipped); err != nil {
			zap.L().Error("failed to record run completion", zap.Error(err))
		}

		fmt.Printf("Processed %d item(s), skipped %d already in ledger\n",
			len(summary.Results), summary.Skipped)
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runDays, "days", 0, "days back to search (default from config)")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 0, "initial per-source batch size (default from config)")
	runCmd.Flags().IntVar(&runTarget, "target", 0, "new items to process (default from config)")
	runCmd.Flags().BoolVar(&runNoPublish, "no-publish", false, "skip the LinkedIn publishing step")
	rootCmd.AddCommand(runCmd)
}
