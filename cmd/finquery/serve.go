package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/auth"
	"github.com/rhuss/finquery/pkg/auth/apikey"
	"github.com/rhuss/finquery/pkg/auth/jwt"
	"github.com/rhuss/finquery/pkg/config"
	"github.com/rhuss/finquery/pkg/pipeline"
	"github.com/rhuss/finquery/pkg/transport"
	transporthttp "github.com/rhuss/finquery/pkg/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query pipeline over REST",
	Long: `Serve POST /query, GET /runs and GET /healthz.

The server starts even when required API keys are missing. /healthz then
reports "degraded" and POST /query answers 500 until the keys are set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	authMW, err := authMiddleware(cfg.Auth)
	if err != nil {
		return err
	}

	adapter := transporthttp.NewAdapter(queryRunner(a), a.store, adapterConfig(cfg, a),
		transport.Recovery(),
		transport.Logging(slog.Default()),
	)
	adapter.Use(authMW)

	srv := transporthttp.NewServer(adapter, transporthttp.ServerConfig{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, slog.Default())

	slog.Info("finquery starting",
		"port", cfg.Server.Port,
		"variant", cfg.Pipeline.Variant,
		"sandbox", cfg.Sandbox.Type,
		"history", a.backend,
		"auth", cfg.Auth.Type,
	)
	return srv.ListenAndServe(ctx)
}

// queryRunner returns the pipeline, or a runner that refuses every query
// when the pipeline could not be built.
func queryRunner(a *app) transport.QueryRunner {
	if a.pipeline != nil {
		return a.pipeline
	}
	return transport.RunnerFunc(func(context.Context, string) (*pipeline.Result, error) {
		return nil, api.NewServerError("pipeline is not configured")
	})
}

func adapterConfig(cfg *config.Config, a *app) transporthttp.Config {
	ac := transporthttp.DefaultConfig()
	ac.Version = version
	ac.MaxBodySize = cfg.Server.MaxBodySize
	ac.Validation.MaxQueryLength = cfg.Server.MaxQueryLength
	ac.Checks = cfg.KeyChecks()
	ac.HistoryBackend = a.backend
	ac.DisableMetrics = !cfg.Observability.Metrics.Enabled
	if a.registry != nil {
		ac.ToolCount = a.registry.Len()
	}
	return ac
}

// authMiddleware builds the authenticator chain for auth.type. Type "none"
// admits every caller as anonymous; rate limits still apply.
func authMiddleware(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	chain := &auth.Chain{Default: auth.No}
	switch cfg.Type {
	case "", "none":
		chain.Default = auth.Yes
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{
				Key: k.Key,
				Identity: auth.Identity{
					Subject: k.Subject,
					Tenant:  k.TenantID,
					Tier:    k.Tier,
					Scopes:  k.Scopes,
				},
			})
		}
		chain.Authenticators = append(chain.Authenticators, apikey.New(keys))
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			Secret:      cfg.JWT.Secret,
			TenantClaim: cfg.JWT.TenantClaim,
			TierClaim:   cfg.JWT.TierClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("jwt auth: %w", err)
		}
		chain.Authenticators = append(chain.Authenticators, a)
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.DefaultRPM > 0 || len(cfg.RateLimit.Tiers) > 0 {
		limiter = auth.NewLimiter(cfg.RateLimit.Tiers, cfg.RateLimit.DefaultRPM)
	}
	return auth.Middleware(chain, limiter, auth.PublicPaths), nil
}
