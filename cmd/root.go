package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "attribution",
	Short: "Contact identity resolution and attribution engine",
	Long:  "Syncs contacts, meetings, deals, and form submissions from CRM, scheduler, and web forms; resolves them into canonical contacts; and derives multi-touch attribution.",
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
