package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/rhuss/finquery/pkg/agent"
	"github.com/rhuss/finquery/pkg/config"
	"github.com/rhuss/finquery/pkg/gateway"
	"github.com/rhuss/finquery/pkg/history"
	"github.com/rhuss/finquery/pkg/history/memory"
	"github.com/rhuss/finquery/pkg/history/postgres"
	"github.com/rhuss/finquery/pkg/pipeline"
	"github.com/rhuss/finquery/pkg/prompts"
	"github.com/rhuss/finquery/pkg/provider"
	"github.com/rhuss/finquery/pkg/provider/anthropic"
	"github.com/rhuss/finquery/pkg/provider/openaicompat"
	"github.com/rhuss/finquery/pkg/registry"
	"github.com/rhuss/finquery/pkg/sandbox"
	"github.com/rhuss/finquery/pkg/sandbox/kubernetes"
	"github.com/rhuss/finquery/pkg/sandbox/remote"
	"github.com/rhuss/finquery/pkg/toolclient"
)

// app holds everything a command needs to run queries. Pipeline is nil when
// required keys are missing.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	registry *registry.Registry
	store    history.Store
	backend  string

	closers []func(context.Context) error
}

// newApp builds the collaborators described by cfg. With requirePipeline
// false, missing keys leave the pipeline unset instead of failing, so the
// server can still report its degraded health.
func newApp(ctx context.Context, cfg *config.Config, requirePipeline bool) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if cfg.Pipeline.Registry {
		reg, err := registry.LoadDir(toolsPath(cfg))
		if err != nil {
			slog.Warn("tool registry unavailable, argument checks disabled", "error", err)
		} else {
			a.registry = reg
			slog.Info("tool registry loaded", "tools", reg.Len())
		}
	}

	a.store, a.backend, err = newStore(ctx, cfg.Storage)
	if err != nil {
		return a, err
	}
	if a.store != nil {
		store := a.store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	}

	if missing := cfg.MissingKeys(); len(missing) > 0 {
		if requirePipeline {
			return a, fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
		}
		slog.Warn("required keys missing, queries are disabled", "missing", missing)
		return a, nil
	}

	a.pipeline, err = a.buildPipeline(cfg)
	return a, err
}

func (a *app) buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	prov, err := newProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return prov.Close() })

	tc := toolclient.New(mcpConfig(cfg))
	a.closers = append(a.closers, func(context.Context) error { return tc.Close() })

	gw := gateway.New(tc, gateway.Config{
		Addr:        cfg.Tools.Gateway.Addr,
		Token:       cfg.Tools.Gateway.Token,
		Registry:    a.registry,
		CallTimeout: cfg.Tools.CallTimeout,
	})
	if err := gw.Start(); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, gw.Shutdown)

	exec, err := newExecutor(cfg, gw)
	if err != nil {
		return nil, err
	}

	set := prompts.Default()
	if cfg.Pipeline.PromptsDir != "" {
		if set, err = prompts.Load(cfg.Pipeline.PromptsDir); err != nil {
			return nil, err
		}
	}

	return pipeline.New(pipeline.Deps{
		Agent: agent.New(prov, agent.Config{
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}),
		Executor: exec,
		Prompts:  set,
		Registry: a.registry,
		History:  a.store,
	}, pipeline.Config{
		WorkDir:  cfg.Sandbox.WorkDir,
		ToolsDir: cfg.Tools.Dir,
		Variant:  cfg.Pipeline.Variant,
	})
}

// Close releases resources in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newProvider(cfg config.LLMConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaicompat.New(openaicompat.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return anthropic.New(anthropic.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	}
}

// newStore returns the run history store and its backend name. Type "none"
// returns a nil store.
func newStore(ctx context.Context, cfg config.StorageConfig) (history.Store, string, error) {
	switch cfg.Type {
	case "none":
		return nil, "none", nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, "", err
		}
		return s, "postgres", nil
	default:
		return memory.New(cfg.MaxSize), "memory", nil
	}
}

func mcpConfig(cfg *config.Config) toolclient.Config {
	tc := cfg.MCP.Config
	if tc.CallTimeout == 0 {
		tc.CallTimeout = cfg.Tools.CallTimeout
	}
	return tc
}

// newExecutor builds the sandbox named by sandbox.type. Local children
// reach the gateway on loopback; remote ones use the advertised URL.
func newExecutor(cfg *config.Config, gw *gateway.Gateway) (sandbox.Executor, error) {
	sc := cfg.Sandbox
	if sc.Type == "local" || sc.Type == "" {
		return sandbox.NewLocal(sandbox.Config{
			WorkDir:     sc.WorkDir,
			Mode:        sc.Mode,
			Interpreter: sc.Interpreter,
			Timeout:     sc.Timeout,
			Env:         gw.Env(),
		})
	}

	gatewayURL := gw.URL()
	if cfg.Tools.Gateway.AdvertiseURL != "" {
		gatewayURL = cfg.Tools.Gateway.AdvertiseURL
	}
	rc := remote.Config{
		Timeout:     sc.Timeout,
		SourceDir:   sc.WorkDir,
		ShipPattern: shipPattern(cfg.Tools.Dir),
		Env: map[string]string{
			gateway.EnvURL:   gatewayURL,
			gateway.EnvToken: gw.Token(),
		},
	}

	var acq remote.Acquirer
	switch sc.Type {
	case "remote":
		acq = remote.StaticAcquirer{URL: sc.Remote.URL}
	case "kubernetes":
		c, err := kubernetes.NewClient()
		if err != nil {
			return nil, err
		}
		acq = kubernetes.NewClaimAcquirer(c, kubernetes.Config{
			Template:  sc.Kubernetes.Template,
			Namespace: sc.Kubernetes.Namespace,
			Timeout:   sc.Kubernetes.ReadyTimeout,
			Port:      sc.Kubernetes.Port,
		})
	default:
		return nil, fmt.Errorf("unknown sandbox type %q", sc.Type)
	}
	return remote.NewExecutor(acq, rc)
}

// shipPattern selects every Python file under the top directory of the
// tools dir, so servers/alphavantage ships servers/**/*.py.
func shipPattern(toolsDir string) string {
	dir := strings.Trim(filepath.ToSlash(filepath.Clean(toolsDir)), "/")
	if i := strings.IndexByte(dir, '/'); i >= 0 {
		dir = dir[:i]
	}
	if dir == "" || dir == "." {
		return "**/*.py"
	}
	return path.Join(dir, "**", "*.py")
}

func toolsPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Tools.Dir) {
		return cfg.Tools.Dir
	}
	return filepath.Join(cfg.Sandbox.WorkDir, cfg.Tools.Dir)
}
