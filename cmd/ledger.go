package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/literature-agent/internal/ledger"
)

var ledgerClearYes bool

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or reset the dedup ledger",
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger path and entry count",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}

		fmt.Printf("Ledger: %s\n", led.Path())
		fmt.Printf("Entries: %d\n", led.Len())
		return nil
	},
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Back up the ledger and reset it to empty",
	Long:  "Copies the current ledger to a timestamped backup next to it, then rewrites the ledger with only the header row. Every previously seen item will be treated as new on the next run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Ledger.Path

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("Ledger %s does not exist, nothing to clear.\n", path)
				return nil
			}
			return eris.Wrap(err, "ledger: read")
		}

		if !ledgerClearYes {
			fmt.Printf("This resets %s and makes every seen item reprocessable. Type 'yes' to confirm: ", path)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(answer) != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		backup := filepath.Join(filepath.Dir(path),
			fmt.Sprintf("ledger_backup_%s.csv", time.Now().Format("20060102_150405")))
		if err := os.WriteFile(backup, data, 0o644); err != nil {
			return eris.Wrap(err, "ledger: write backup")
		}
		fmt.Printf("Backup written to %s\n", backup)

		if err := os.Remove(path); err != nil {
			return eris.Wrap(err, "ledger: remove")
		}
		led, err := ledger.Open(path)
		if err != nil {
			return err
		}
		if err := led.Save(); err != nil {
			return err
		}

		fmt.Printf("Ledger %s cleared.\n", path)
		return nil
	},
}

func init() {
	ledgerClearCmd.Flags().BoolVar(&ledgerClearYes, "yes", false, "skip the confirmation prompt")
	ledgerCmd.AddCommand(ledgerStatusCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)
	rootCmd.AddCommand(ledgerCmd)
}
