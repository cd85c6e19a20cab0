package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/history"
	"github.com/rhuss/finquery/pkg/observability"
	"github.com/rhuss/finquery/pkg/transport"
)

// PublicPaths skip authentication.
var PublicPaths = []string{"/", "/healthz", "/metrics"}

// Middleware authenticates every request not in public, applies the rate
// limit when limiter is non-nil, and stores the identity and its tenant in
// the request context.
func Middleware(chain *Chain, limiter RateLimiter, public []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(public))
	for _, p := range public {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				transport.WriteErrorResponse(w, &api.APIError{
					Type:    api.ErrorTypeInvalidRequest,
					Code:    "unauthenticated",
					Message: ErrUnauthenticated.Error(),
				}, http.StatusUnauthorized)
				return
			}
			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned an identity without subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					tier := tierOf(id)
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", tier)
					observability.RateLimitRejectedTotal.WithLabelValues(tier).Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError(err.Error()))
					return
				}
			}

			ctx := WithIdentity(r.Context(), id)
			if id.Tenant != "" {
				ctx = history.WithTenant(ctx, id.Tenant)
			}
			slog.Debug("authenticated", "subject", id.Subject, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
