package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/finquery/pkg/transport"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Ask questions interactively",
	Args:  cobra.NoArgs,
	RunE:  runREPL,
}

func init() {
	replCmd.Flags().Bool("debug", false, "print the selected tool, generated code and raw tool output")
}

func runREPL(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	showDebug, _ := cmd.Flags().GetBool("debug")

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

	banner(cmd.OutOrStdout(), cfg.Pipeline.Variant)
	return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.pipeline, showDebug)
}

const rule = "======================================================================"

func banner(w io.Writer, variant string) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Financial Data Assistant ("+variant+" pipeline)")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  Type your query and press Enter")
	fmt.Fprintln(w, "  'exit' or 'quit' to exit")
	fmt.Fprintln(w, "\nExample queries:")
	fmt.Fprintln(w, "  - What's the current price of Tesla?")
	fmt.Fprintln(w, "  - Show me Apple's company overview")
	fmt.Fprintln(w, "  - Get the last 5 days of NVDA stock data")
	fmt.Fprintln(w, rule)
}

// repl reads one query per line until exit, EOF or ctx is done. A failed
// query is reported and the loop continues.
func repl(ctx context.Context, in io.Reader, out io.Writer, runner transport.QueryRunner, showDebug bool) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "\n💬 You: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\n\n👋 Goodbye!")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out, "\n👋 Goodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if q := strings.ToLower(line); q == "exit" || q == "quit" {
			fmt.Fprintln(out, "\n👋 Goodbye!")
			return nil
		}

		res, err := runner.Run(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out, "\n\n👋 Goodbye!")
				return nil
			}
			fmt.Fprintf(out, "\n❌ Error: %v\n", err)
			continue
		}
		fmt.Fprintln(out)
		printResult(out, res, showDebug)
	}
}
