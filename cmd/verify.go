package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/literature-agent/internal/ledger"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check configuration, ledger, and LLM endpoint health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		failed := 0

		check := func(name string, err error) {
			if err != nil {
				failed++
				fmt.Printf("FAIL  %s: %v\n", name, err)
				return
			}
			fmt.Printf("ok    %s\n", name)
		}

		check("config", cfg.Validate())
		check("ledger", func() error {
			led, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			fmt.Printf("      %d entries at %s\n", led.Len(), led.Path())
			return nil
		}())
		check("llm endpoint", pingLLM(ctx, cfg.LLM.BaseURL))

		if failed > 0 {
			return eris.Errorf("verify: %d check(s) failed", failed)
		}
		fmt.Println("All checks passed.")
		return nil
	},
}

// pingLLM hits the models listing of the OpenAI-compatible endpoint.
func pingLLM(ctx context.Context, baseURL string) error {
	url := strings.TrimRight(baseURL, "/") + "/models"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
