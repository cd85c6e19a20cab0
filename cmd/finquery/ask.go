package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/finquery/pkg/pipeline"
)

var askCmd = &cobra.Command{
	Use:   "ask <query...>",
	Short: "Answer one question and exit",
	Example: `  finquery ask "What's the current price of Tesla?"
  finquery ask --debug Get the last 5 days of NVDA stock data`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Bool("debug", false, "also print the selected tool, generated code and raw tool output")
	askCmd.Flags().Bool("json", false, "print the result as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	showDebug, _ := cmd.Flags().GetBool("debug")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Warn("cleanup failed", "error", err)
		}
	}()

	res, err := a.pipeline.Run(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(out, res, showDebug)
	if !res.Success {
		return errors.New("query failed")
	}
	return nil
}

// printResult writes the answer, preceded by the run details when
// showDebug is set.
func printResult(w io.Writer, res *pipeline.Result, showDebug bool) {
	if showDebug {
		fmt.Fprintf(w, "Run:  %s (%d ms)\n", res.RunID, res.Duration.Milliseconds())
		if res.ToolUsed != nil {
			fmt.Fprintf(w, "Tool: %s\n", *res.ToolUsed)
		}
		if res.GeneratedCode != nil {
			fmt.Fprintf(w, "\nGenerated code:\n%s\n", *res.GeneratedCode)
		}
		if res.RawAPIResponse != nil {
			fmt.Fprintf(w, "\nRaw tool output:\n%s\n", *res.RawAPIResponse)
		}
		fmt.Fprintln(w)
	}
	if !res.Success {
		fmt.Fprintf(w, "❌ %s\n", res.Answer)
		return
	}
	fmt.Fprintln(w, res.Answer)
}
