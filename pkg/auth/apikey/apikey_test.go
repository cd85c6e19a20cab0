package apikey

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/finquery/pkg/auth"
)

func newTestAuth() *Authenticator {
	return New([]Key{
		{Key: "fq-alice", Identity: auth.Identity{Subject: "alice", Tier: "standard", Tenant: "org-1"}},
		{Key: "fq-bob", Identity: auth.Identity{Subject: "bob", Tier: "premium"}},
		{Key: "fq-anon"},
		{Key: ""},
	})
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		value       string
		want        auth.Decision
		wantSubject string
	}{
		{"bearer key", "Authorization", "Bearer fq-alice", auth.Yes, "alice"},
		{"lowercase scheme", "Authorization", "bearer fq-bob", auth.Yes, "bob"},
		{"x-api-key header", HeaderName, "fq-bob", auth.Yes, "bob"},
		{"unknown key", "Authorization", "Bearer nope", auth.No, ""},
		{"empty bearer", "Authorization", "Bearer ", auth.No, ""},
		{"basic auth abstains", "Authorization", "Basic dXNlcjpwYXNz", auth.Abstain, ""},
		{"no credentials", "", "", auth.Abstain, ""},
	}

	a := newTestAuth()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/query", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			res := a.Authenticate(context.Background(), r)
			if res.Decision != tt.want {
				t.Fatalf("decision = %v, want %v", res.Decision, tt.want)
			}
			if tt.want == auth.Yes && res.Identity.Subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", res.Identity.Subject, tt.wantSubject)
			}
		})
	}
}

func TestAuthenticate_IdentityIsCopied(t *testing.T) {
	a := newTestAuth()
	r := httptest.NewRequest("POST", "/query", nil)
	r.Header.Set("Authorization", "Bearer fq-alice")

	first := a.Authenticate(context.Background(), r)
	first.Identity.Tenant = "changed"

	second := a.Authenticate(context.Background(), r)
	if second.Identity.Tenant != "org-1" {
		t.Errorf("tenant = %q, identity leaked between requests", second.Identity.Tenant)
	}
}

func TestAuthenticate_DerivedSubject(t *testing.T) {
	a := newTestAuth()
	r := httptest.NewRequest("POST", "/query", nil)
	r.Header.Set(HeaderName, "fq-anon")

	res := a.Authenticate(context.Background(), r)
	if res.Decision != auth.Yes || !strings.HasPrefix(res.Identity.Subject, "apikey-") {
		t.Errorf("result = %+v", res)
	}
}
