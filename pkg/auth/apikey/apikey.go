// Package apikey authenticates callers with static API keys.
//
// Keys are accepted as "Authorization: Bearer <key>" or in the X-API-Key
// header. Only SHA-256 hashes of the configured keys are kept.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/rhuss/finquery/pkg/auth"
)

// HeaderName is the alternative header carrying a key.
const HeaderName = "X-API-Key"

// Key is one configured key and the identity it grants.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	hash     [sha256.Size]byte
	identity auth.Identity
}

// Authenticator checks presented keys against the configured set.
type Authenticator struct {
	entries []entry
}

// New hashes keys. Entries with an empty key are ignored.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		a.entries = append(a.entries, entry{hash: sha256.Sum256([]byte(k.Key)), identity: k.Identity})
	}
	return a
}

// Authenticate abstains without a key, votes No for an unknown key and
// Yes with a copy of the key's identity otherwise.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, ok := presented(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	sum := sha256.Sum256([]byte(key))
	match := -1
	for i, e := range a.entries {
		// Compare against every entry so timing does not reveal the position.
		if subtle.ConstantTimeCompare(sum[:], e.hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}
	id := a.entries[match].identity
	if id.Subject == "" {
		id.Subject = "apikey-" + hex.EncodeToString(sum[:4])
	}
	return auth.Result{Decision: auth.Yes, Identity: &id}
}

func presented(r *http.Request) (string, bool) {
	if v := r.Header.Get(HeaderName); v != "" {
		return strings.TrimSpace(v), true
	}
	return auth.BearerToken(r)
}
