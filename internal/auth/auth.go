// Package auth guards the API with a single bcrypt-hashed key.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"patchscope/pkg/types"
)

// GenerateKey returns a new random key and its bcrypt hash.
func GenerateKey() (key, hash string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	key = "ps-" + hex.EncodeToString(raw)
	hash, err = HashKey(key)
	return key, hash, err
}

// HashKey bcrypt-hashes key for the auth.api_key_hash setting.
func HashKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Authenticator checks presented keys against one hash. Verified keys are
// remembered by SHA-256 digest so bcrypt runs once per distinct key.
type Authenticator struct {
	hash []byte
	ok   sync.Map
}

// New returns nil when hash is empty, which disables auth.
func New(hash string) *Authenticator {
	if hash == "" {
		return nil
	}
	return &Authenticator{hash: []byte(hash)}
}

// Verify reports whether key matches the configured hash.
func (a *Authenticator) Verify(key string) bool {
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if _, hit := a.ok.Load(digest); hit {
		return true
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(key)) != nil {
		return false
	}
	a.ok.Store(digest, struct{}{})
	return true
}

// KeyFromRequest reads "Authorization: Bearer <key>" or "X-API-Key".
func KeyFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, key, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(key)
		}
		return ""
	}
	return r.Header.Get("X-API-Key")
}

// Middleware rejects requests without a valid key with a 401 envelope.
// A nil Authenticator passes everything through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Verify(KeyFromRequest(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="patchscope"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(types.ErrorResponse{Success: false, Error: "invalid or missing API key", Code: http.StatusUnauthorized})
			return
		}
		next.ServeHTTP(w, r)
	})
}
