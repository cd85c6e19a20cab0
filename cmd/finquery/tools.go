package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/finquery/pkg/registry"
	"github.com/rhuss/finquery/pkg/toolclient"
	"github.com/rhuss/finquery/pkg/toolgen"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the pipeline can select",
	Long: `List the tools described by the wrapper files in tools.dir.

With --live the list comes from the tool server instead.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

var gentoolsCmd = &cobra.Command{
	Use:   "gentools",
	Short: "Generate the Python wrapper package from the tool server's catalog",
	Args:  cobra.NoArgs,
	RunE:  runGentools,
}

func init() {
	toolsCmd.Flags().Bool("live", false, "query the tool server instead of reading wrapper files")
	gentoolsCmd.Flags().String("out", "", "output directory (default: tools.dir under sandbox.work_dir)")
	gentoolsCmd.Flags().String("title", "", "README and package title")
	gentoolsCmd.Flags().Duration("timeout", 2*time.Minute, "time allowed for listing tools")
}

func runTools(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	live, _ := cmd.Flags().GetBool("live")

	var reg *registry.Registry
	if live {
		tc := toolclient.New(mcpConfig(cfg))
		defer tc.Close()
		tools, err := tc.ListTools(cmd.Context())
		if err != nil {
			return err
		}
		if reg, err = registry.FromMCPTools(tools); err != nil {
			return err
		}
	} else if reg, err = registry.LoadDir(toolsPath(cfg)); err != nil {
		return err
	}
	return listTools(cmd.OutOrStdout(), reg)
}

func listTools(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range reg.Descriptors() {
		fmt.Fprintf(tw, "%s\t%s\n", d.Name, summary(d.Description))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d tools\n", reg.Len())
	return nil
}

// summary returns the first line of a description.
func summary(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

func runGentools(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = toolsPath(cfg)
	}
	title, _ := cmd.Flags().GetString("title")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	tc := toolclient.New(mcpConfig(cfg))
	defer tc.Close()
	tools, err := tc.ListTools(ctx)
	if err != nil {
		return err
	}
	reg, err := registry.FromMCPTools(tools)
	if err != nil {
		return err
	}

	report, err := toolgen.Generate(reg.Descriptors(), toolgen.Options{
		OutDir:      out,
		Title:       title,
		CallTimeout: cfg.Tools.CallTimeout,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Generated %d tools, %d files in %s\n", len(report.Tools), len(report.Files), out)
	return nil
}
