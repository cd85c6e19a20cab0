// Package auth authenticates REST callers.
//
// Authenticators vote on each request: Yes with an identity, No when the
// credentials they understand are wrong, or Abstain when the request carries
// nothing they recognize. A Chain asks each in turn and falls back to a
// default vote when every authenticator abstains.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Decision is an authenticator's vote.
type Decision int

const (
	Yes Decision = iota
	No
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Identity is an authenticated caller.
type Identity struct {
	Subject string
	// Tenant scopes the caller's run history. Empty means the shared space.
	Tenant string
	// Tier selects the rate limit.
	Tier   string
	Scopes []string
}

// Result is the outcome of one authentication attempt. Identity is set
// only for Yes, Err only for No.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Authenticator inspects a request's credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) Result

func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) Result {
	return f(ctx, r)
}

// Anonymous is the identity granted when the chain's default is Yes.
var Anonymous = Identity{Subject: "anonymous", Tier: "default"}

// Chain runs authenticators left to right and stops at the first vote
// that is not Abstain.
type Chain struct {
	Authenticators []Authenticator
	// Default is used when every authenticator abstains. Yes admits the
	// caller as Anonymous.
	Default Decision
}

// Authenticate runs the chain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		id := Anonymous
		return Result{Decision: Yes, Identity: &id}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
// ok is false when the header is missing or uses another scheme.
func BearerToken(r *http.Request) (token string, ok bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored in ctx, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
