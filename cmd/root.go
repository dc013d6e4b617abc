package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dvf-flood/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dvf-flood",
	Short: "Flood-zone price study on DVF property sales",
	Long:  "Downloads DVF sales of coastal communes, geocodes them, tags TRI flood-zone membership and fits hedonic price regressions per property type.",
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
