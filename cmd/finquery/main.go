// Command finquery answers natural-language financial data questions.
//
// Usage:
//
//	finquery serve                      # REST API on :8000
//	finquery ask "What's the current price of Tesla?"
//	finquery repl                       # interactive prompt
//	finquery tools                      # list the known tools
//	finquery gentools --out servers/alphavantage
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/finquery/pkg/config"
	"github.com/rhuss/finquery/pkg/debug"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "finquery",
	Short:         "Answer financial data questions with a multi-stage agent pipeline",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config.yaml (default: $FINQUERY_CONFIG or ./config.yaml)")
	rootCmd.AddCommand(serveCmd, askCmd, replCmd, toolsCmd, gentoolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config and initializes
// logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})
	return cfg, nil
}
