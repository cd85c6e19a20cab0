// Package pipeline sequences the agent stages that turn a financial question
// into an answer.
//
// A run moves strictly forward through discovery, selection, reader, coder,
// execute and parser. A stage that cannot extract what the next one needs
// ends the run with a failure Result. Language-model transport errors are
// returned as errors instead, wrapped with the stage they happened in.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rhuss/finquery/pkg/agent"
	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/history"
	"github.com/rhuss/finquery/pkg/observability"
	"github.com/rhuss/finquery/pkg/prompts"
	"github.com/rhuss/finquery/pkg/registry"
	"github.com/rhuss/finquery/pkg/sandbox"
	"github.com/rhuss/finquery/pkg/selection"
)

// Stage names a pipeline state.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageSelection Stage = "selection"
	StageReader    Stage = "reader"
	StageCoder     Stage = "coder"
	StageExecute   Stage = "execute"
	StageParser    Stage = "parser"
)

// Variants.
const (
	// VariantFiveStage runs discovery and selection as separate agents.
	VariantFiveStage = "five-stage"
	// VariantExplorer lets one agent both list the tools and pick one.
	VariantExplorer = "explorer"
)

// DefaultToolsDir is where the wrapper files live, relative to the sandbox
// work dir.
const DefaultToolsDir = "servers/alphavantage"

var (
	ErrNoCode       = errors.New("no code block in response")
	ErrNoTools      = errors.New("no tools discovered")
	ErrNoSelection  = errors.New("no SELECTED_TOOL line in response")
	ErrToolNotFound = errors.New("tool file not found")
	ErrInvalidTool  = errors.New("invalid tool name")
)

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Agent    agent.Invoker
	Executor sandbox.Executor

	// Prompts defaults to prompts.Default().
	Prompts *prompts.Set
	// Resolver defaults to selection.Default().
	Resolver *selection.Resolver
	// Registry is optional. When set, generated code is checked for a
	// reference to the selected tool.
	Registry *registry.Registry
	// History is optional. Runs are saved best-effort.
	History history.Store
}

// Config holds pipeline settings.
type Config struct {
	// WorkDir is the sandbox work dir. Relative tool paths resolve
	// against it.
	WorkDir string
	// ToolsDir holds one <NAME>.py wrapper per tool. Default:
	// servers/alphavantage.
	ToolsDir string
	// ImportPath is the Python package of ToolsDir. Derived from ToolsDir
	// when empty.
	ImportPath string
	// Variant is five-stage (default) or explorer.
	Variant string
}

// State is threaded through one run. It is never shared between runs.
type State struct {
	Query          string
	AvailableTools []string
	SelectedTool   string
	ToolInterface  string
	GeneratedCode  string
	RawToolOutput  string
	ToolSucceeded  bool
	FinalAnswer    string
}

// Result is the outcome of a run. The pointer fields are nil unless the run
// reached the execute stage.
type Result struct {
	RunID          string        `json:"run_id"`
	Success        bool          `json:"success"`
	Answer         string        `json:"answer"`
	ToolUsed       *string       `json:"tool_used"`
	GeneratedCode  *string       `json:"generated_code"`
	RawAPIResponse *string       `json:"raw_api_response"`
	FailedStage    Stage         `json:"failed_stage,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Pipeline runs queries. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	agent    agent.Invoker
	executor sandbox.Executor
	prompts  *prompts.Set
	resolver *selection.Resolver
	registry *registry.Registry
	history  history.Store
	cfg      Config
}

type runtimeChecker interface {
	CheckRuntime() error
}

// New checks the infrastructure a run depends on and returns a Pipeline.
// The tools directory must exist and, when the executor can report it, the
// interpreter must be installed.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Agent == nil {
		return nil, fmt.Errorf("pipeline: agent must not be nil")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("pipeline: executor must not be nil")
	}
	if deps.Prompts == nil {
		deps.Prompts = prompts.Default()
	}
	if deps.Resolver == nil {
		deps.Resolver = selection.Default()
	}
	if cfg.ToolsDir == "" {
		cfg.ToolsDir = DefaultToolsDir
	}
	if cfg.ImportPath == "" {
		cfg.ImportPath = importPath(cfg.ToolsDir)
	}
	switch cfg.Variant {
	case "":
		cfg.Variant = VariantFiveStage
	case VariantFiveStage, VariantExplorer:
	default:
		return nil, fmt.Errorf("pipeline: unknown variant %q", cfg.Variant)
	}

	p := &Pipeline{
		agent:    deps.Agent,
		executor: deps.Executor,
		prompts:  deps.Prompts,
		resolver: deps.Resolver,
		registry: deps.Registry,
		history:  deps.History,
		cfg:      cfg,
	}

	info, err := os.Stat(p.toolsPath())
	if err != nil {
		return nil, fmt.Errorf("pipeline: tools dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pipeline: tools dir %s is not a directory", p.toolsPath())
	}
	if rc, ok := deps.Executor.(runtimeChecker); ok {
		if err := rc.CheckRuntime(); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}
	return p, nil
}

// importPath turns servers/alphavantage into servers.alphavantage.
func importPath(dir string) string {
	dir = strings.Trim(filepath.ToSlash(filepath.Clean(dir)), "/")
	return strings.ReplaceAll(dir, "/", ".")
}

func (p *Pipeline) toolsPath() string {
	if filepath.IsAbs(p.cfg.ToolsDir) || p.cfg.WorkDir == "" {
		return p.cfg.ToolsDir
	}
	return filepath.Join(p.cfg.WorkDir, p.cfg.ToolsDir)
}

// Run answers query. A non-nil error means a language-model call failed;
// every other problem is reported in the Result.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	runID := api.NewRunID()
	log := slog.With("run_id", runID)
	log.Info("pipeline started", "query", debug.Truncate(query, 120), "variant", p.cfg.Variant)

	st := &State{Query: query}
	stage, err := p.run(ctx, log, st)

	if err != nil {
		var sf *stageFailure
		if !errors.As(err, &sf) {
			observability.PipelineRunsTotal.WithLabelValues("error").Inc()
			observability.StageFailuresTotal.WithLabelValues(string(stage)).Inc()
			log.Error("pipeline error", "stage", stage, "error", err)
			return nil, fmt.Errorf("%s stage: %w", stage, err)
		}
		observability.PipelineRunsTotal.WithLabelValues("failure").Inc()
		observability.StageFailuresTotal.WithLabelValues(string(stage)).Inc()
		res := &Result{
			RunID:       runID,
			Answer:      sf.Error(),
			FailedStage: stage,
			Duration:    time.Since(start),
		}
		log.Warn("pipeline halted", "stage", stage, "reason", sf.err, "duration_ms", res.Duration.Milliseconds())
		p.save(ctx, log, query, res)
		return res, nil
	}

	observability.PipelineRunsTotal.WithLabelValues("success").Inc()
	res := &Result{
		RunID:          runID,
		Success:        true,
		Answer:         st.FinalAnswer,
		ToolUsed:       ptr(st.SelectedTool),
		GeneratedCode:  ptr(st.GeneratedCode),
		RawAPIResponse: ptr(st.RawToolOutput),
		Duration:       time.Since(start),
	}
	log.Info("pipeline complete",
		"tool", st.SelectedTool,
		"tool_succeeded", st.ToolSucceeded,
		"duration_ms", res.Duration.Milliseconds(),
	)
	p.save(ctx, log, query, res)
	return res, nil
}

func ptr(s string) *string { return &s }

// stageFailure halts a run with a failure Result.
type stageFailure struct {
	stage Stage
	err   error
}

func (f *stageFailure) Error() string {
	return fmt.Sprintf("Failed at %s stage: %v", f.stage, f.err)
}

func (f *stageFailure) Unwrap() error { return f.err }

func halt(stage Stage, err error) error {
	return &stageFailure{stage: stage, err: err}
}

// run executes the stages in order and returns the stage it stopped in.
func (p *Pipeline) run(ctx context.Context, log *slog.Logger, st *State) (Stage, error) {
	type step struct {
		stage Stage
		fn    func(context.Context, *slog.Logger, *State) error
	}

	var steps []step
	if p.cfg.Variant == VariantExplorer {
		steps = append(steps, step{StageSelection, p.explore})
	} else {
		steps = append(steps,
			step{StageDiscovery, p.discover},
			step{StageSelection, p.selectTool},
		)
	}
	steps = append(steps,
		step{StageReader, p.read},
		step{StageCoder, p.code},
		step{StageExecute, p.execute},
		step{StageParser, p.parse},
	)

	for _, s := range steps {
		start := time.Now()
		err := s.fn(agent.WithStage(ctx, string(s.stage)), log, st)
		observability.StageDuration.WithLabelValues(string(s.stage)).Observe(time.Since(start).Seconds())
		if err != nil {
			return s.stage, err
		}
	}
	return "", nil
}

func (p *Pipeline) save(ctx context.Context, log *slog.Logger, query string, res *Result) {
	if p.history == nil {
		return
	}
	run := &history.Run{
		ID:          res.RunID,
		Query:       query,
		Success:     res.Success,
		Answer:      res.Answer,
		FailedStage: string(res.FailedStage),
		Duration:    res.Duration,
		CreatedAt:   time.Now().UTC(),
	}
	if res.ToolUsed != nil {
		run.ToolUsed = *res.ToolUsed
	}
	if res.GeneratedCode != nil {
		run.GeneratedCode = *res.GeneratedCode
		run.CodeHash = history.HashCode(run.GeneratedCode)
	}
	if res.RawAPIResponse != nil {
		run.RawAPIResponse = *res.RawAPIResponse
	}
	// The caller may already be gone; the record should still land.
	if err := p.history.Save(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("saving run failed", "error", err)
	}
}
