// Package jwt authenticates callers with signed JSON Web Tokens.
//
// Tokens are verified either with RSA keys from a JWKS endpoint or with a
// shared HMAC secret. The subject, tenant, tier and scopes of the identity
// are read from configurable claims.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/finquery/pkg/auth"
)

// Config configures token verification.
type Config struct {
	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string

	// JWKSURL serves the RSA verification keys.
	JWKSURL string
	// Secret enables HS256/384/512 tokens. Used when JWKSURL is empty.
	Secret string

	// Claim names. Defaults: sub, tenant_id, tier, scope.
	SubjectClaim string
	TenantClaim  string
	TierClaim    string
	ScopesClaim  string

	// CacheTTL is how long fetched keys are trusted. Default: 1h.
	CacheTTL time.Duration

	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Authenticator verifies bearer tokens.
type Authenticator struct {
	cfg     Config
	keys    *keySet
	methods []string
}

// New returns an Authenticator. One of JWKSURL or Secret is required.
func New(cfg Config) (*Authenticator, error) {
	cfg.defaults()
	a := &Authenticator{cfg: cfg}
	switch {
	case cfg.JWKSURL != "":
		a.keys = &keySet{url: cfg.JWKSURL, ttl: cfg.CacheTTL, client: cfg.HTTPClient}
		a.methods = []string{"RS256", "RS384", "RS512"}
	case cfg.Secret != "":
		a.methods = []string{"HS256", "HS384", "HS512"}
	default:
		return nil, errors.New("jwt: jwks_url or secret is required")
	}
	return a, nil
}

// Authenticate abstains unless the request carries a bearer token. A token
// that fails verification or lacks a subject is a No.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	raw, ok := auth.BearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if raw == "" {
		return auth.Result{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		return a.verificationKey(ctx, t)
	}, a.parserOptions()...)
	if err != nil {
		slog.Debug("jwt rejected", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid token: %w", err)}
	}

	id := &auth.Identity{
		Subject: stringClaim(claims, a.cfg.SubjectClaim),
		Tenant:  stringClaim(claims, a.cfg.TenantClaim),
		Tier:    stringClaim(claims, a.cfg.TierClaim),
		Scopes:  scopes(claims[a.cfg.ScopesClaim]),
	}
	if id.Subject == "" {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("token has no %q claim", a.cfg.SubjectClaim)}
	}
	return auth.Result{Decision: auth.Yes, Identity: id}
}

func (a *Authenticator) verificationKey(ctx context.Context, t *jwtlib.Token) (any, error) {
	if a.keys == nil {
		return []byte(a.cfg.Secret), nil
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token has no kid header")
	}
	return a.keys.get(ctx, kid)
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(a.methods),
		jwtlib.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.cfg.Audience))
	}
	return opts
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopes accepts "a b c" as well as ["a","b","c"].
func scopes(v any) []string {
	switch v := v.(type) {
	case string:
		if f := strings.Fields(v); len(f) > 0 {
			return f
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// keySet caches the RSA keys of a JWKS endpoint. An unknown kid triggers a
// refetch, so rotated keys are picked up before the TTL expires.
type keySet struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func (k *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	key, ok := k.keys[kid]
	fresh := time.Since(k.fetched) < k.ttl
	k.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.keys[kid]; ok && time.Since(k.fetched) < k.ttl {
		return key, nil
	}
	if err := k.refresh(ctx); err != nil {
		return nil, err
	}
	key, ok = k.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not in JWKS", kid)
	}
	return key, nil
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// refresh replaces the cached keys. Callers hold the write lock.
func (k *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching JWKS: status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, j := range doc.Keys {
		if j.Kty != "RSA" || (j.Use != "" && j.Use != "sig") {
			continue
		}
		pub, err := rsaKey(j)
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", j.Kid, "error", err)
			continue
		}
		keys[j.Kid] = pub
	}
	k.keys = keys
	k.fetched = time.Now()
	slog.Debug("JWKS refreshed", "keys", len(keys))
	return nil
}

func rsaKey(j jwk) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent too large")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
