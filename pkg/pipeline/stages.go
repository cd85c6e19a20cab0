package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/extract"
	"github.com/rhuss/finquery/pkg/prompts"
)

var toolNamePattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

func (p *Pipeline) discover(ctx context.Context, log *slog.Logger, st *State) error {
	instructions, err := p.prompts.Discovery(prompts.DiscoveryData{ToolsDir: p.cfg.ToolsDir})
	if err != nil {
		return err
	}
	reply, err := p.agent.Invoke(ctx, instructions)
	if err != nil {
		return err
	}

	code, ok := extract.FirstCodeBlock(reply)
	if !ok {
		return halt(StageDiscovery, ErrNoCode)
	}
	res := p.executor.Execute(ctx, code)
	if !res.Succeeded {
		return halt(StageDiscovery, fmt.Errorf("listing tools failed: %s", firstLine(res.Stderr)))
	}

	st.AvailableTools = extract.ToolBullets(res.Stdout)
	if len(st.AvailableTools) == 0 {
		return halt(StageDiscovery, ErrNoTools)
	}
	log.Info("tools discovered", "count", len(st.AvailableTools))
	return nil
}

func (p *Pipeline) selectTool(ctx context.Context, log *slog.Logger, st *State) error {
	instructions, err := p.prompts.Selection(prompts.SelectionData{Query: st.Query, Tools: st.AvailableTools})
	if err != nil {
		return err
	}
	reply, err := p.agent.Invoke(ctx, instructions)
	if err != nil {
		return err
	}
	return p.resolve(log, st, reply)
}

// explore runs the combined discovery and selection agent. The listing it
// executes only narrows the rule-based resolution; a failed listing does not
// halt the run.
func (p *Pipeline) explore(ctx context.Context, log *slog.Logger, st *State) error {
	instructions, err := p.prompts.Explorer(prompts.ExplorerData{Query: st.Query, ToolsDir: p.cfg.ToolsDir})
	if err != nil {
		return err
	}
	reply, err := p.agent.Invoke(ctx, instructions)
	if err != nil {
		return err
	}

	if code, ok := extract.FirstCodeBlock(reply); ok {
		res := p.executor.Execute(ctx, code)
		if res.Succeeded {
			st.AvailableTools = extract.ToolBullets(res.Stdout)
			log.Info("tools discovered", "count", len(st.AvailableTools))
		} else {
			log.Warn("explorer listing failed", "stderr", debug.Truncate(res.Stderr, 200))
		}
	}
	return p.resolve(log, st, reply)
}

// resolve parses the model's choice from reply and applies the selection
// rules to it.
func (p *Pipeline) resolve(log *slog.Logger, st *State, reply string) error {
	choice, ok := extract.SelectedTool(reply)
	if !ok {
		return halt(StageSelection, ErrNoSelection)
	}

	d := p.resolver.Resolve(st.Query, st.AvailableTools, choice)
	if d.Tool == "" {
		return halt(StageSelection, ErrNoSelection)
	}
	if d.Overridden {
		log.Info("selection overridden",
			"model_choice", d.ModelChoice,
			"tool", d.Tool,
			"tier", d.Tier.String(),
			"reason", d.Reason,
		)
	}
	debug.Log("pipeline", "selection", "model_choice", choice, "tool", d.Tool, "tier", d.Tier.String())
	st.SelectedTool = d.Tool
	return nil
}

func (p *Pipeline) read(ctx context.Context, log *slog.Logger, st *State) error {
	name := strings.ToUpper(strings.TrimSpace(st.SelectedTool))
	if !toolNamePattern.MatchString(name) {
		return halt(StageReader, fmt.Errorf("%w: %q", ErrInvalidTool, st.SelectedTool))
	}
	st.SelectedTool = name

	file := filepath.Join(p.toolsPath(), name+".py")
	source, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return halt(StageReader, fmt.Errorf("%w: %s", ErrToolNotFound, path.Join(filepath.ToSlash(p.cfg.ToolsDir), name+".py")))
	}
	if err != nil {
		return halt(StageReader, fmt.Errorf("reading %s: %w", name+".py", err))
	}

	instructions, err := p.prompts.Reader(prompts.ReaderData{
		Tool:     name,
		ToolsDir: p.cfg.ToolsDir,
		Source:   string(source),
	})
	if err != nil {
		return err
	}
	reply, err := p.agent.Invoke(ctx, instructions)
	if err != nil {
		return err
	}

	st.ToolInterface = reply
	if summary, ok := extract.InterfaceSummary(reply); ok {
		debug.Log("pipeline", "tool interface", "summary", debug.Truncate(summary, 300))
	}
	log.Info("tool interface read", "tool", name, "source_bytes", len(source))
	return nil
}

func (p *Pipeline) code(ctx context.Context, log *slog.Logger, st *State) error {
	instructions, err := p.prompts.Coder(prompts.CoderData{
		Query:      st.Query,
		Tool:       st.SelectedTool,
		Interface:  st.ToolInterface,
		ImportPath: p.cfg.ImportPath,
	})
	if err != nil {
		return err
	}
	reply, err := p.agent.Invoke(ctx, instructions)
	if err != nil {
		return err
	}

	code, ok := extract.FirstCodeBlock(reply)
	if !ok {
		return halt(StageCoder, ErrNoCode)
	}
	st.GeneratedCode = code
	p.precheck(log, st)
	debug.Log("pipeline", "generated code", "code", debug.Truncate(code, 400))
	return nil
}

// precheck warns about generated code that will probably not reach the
// selected tool. It never halts a run.
func (p *Pipeline) precheck(log *slog.Logger, st *State) {
	if p.registry == nil {
		return
	}
	if _, ok := p.registry.Get(st.SelectedTool); !ok {
		log.Warn("selected tool is not registered", "tool", st.SelectedTool)
	}
	if !strings.Contains(st.GeneratedCode, st.SelectedTool) {
		log.Warn("generated code does not reference the selected tool", "tool", st.SelectedTool)
	}
}

// execute runs the generated code. Tool failures are forwarded to the
// parser as the raw output.
func (p *Pipeline) execute(ctx context.Context, log *slog.Logger, st *State) error {
	res := p.executor.Execute(ctx, st.GeneratedCode)
	st.RawToolOutput = res.Output()
	st.ToolSucceeded = res.Succeeded
	if !res.Succeeded {
		log.Warn("tool execution failed",
			"tool", st.SelectedTool,
			"exit_code", res.ExitCode,
			"stderr", debug.Truncate(res.Stderr, 200),
		)
	}
	return nil
}

func (p *Pipeline) parse(ctx context.Context, _ *slog.Logger, st *State) error {
	instructions, err := p.prompts.Parser(prompts.ParserData{
		Query:     st.Query,
		Tool:      st.SelectedTool,
		Succeeded: st.ToolSucceeded,
		Output:    st.RawToolOutput,
	})
	if err != nil {
		return err
	}
	reply, err := p.agent.Invoke(ctx, instructions)
	if err != nil {
		return err
	}
	st.FinalAnswer = strings.TrimSpace(reply)
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no output"
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return debug.Truncate(s, 200)
}
