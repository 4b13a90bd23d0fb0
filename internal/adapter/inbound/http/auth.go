package http

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"
)

// KeyVerifier checks presented API keys against the configured hashes.
// SHA-256 hashes ("sha256:<hex>") take a constant-time fast path;
// argon2id PHC hashes are verified by iteration.
type KeyVerifier struct {
	sha256Hashes [][]byte
	argonHashes  []string
}

// NewKeyVerifier parses the configured hash list. Unparseable entries
// error out: a typo must not silently disable a key.
func NewKeyVerifier(hashes []string) (*KeyVerifier, error) {
	v := &KeyVerifier{}
	for i, h := range hashes {
		switch {
		case strings.HasPrefix(h, "sha256:"):
			raw, err := hex.DecodeString(strings.TrimPrefix(h, "sha256:"))
			if err != nil || len(raw) != sha256.Size {
				return nil, fmt.Errorf("api_keys[%d]: invalid sha256 hash", i)
			}
			v.sha256Hashes = append(v.sha256Hashes, raw)
		case strings.HasPrefix(h, "$argon2id$"):
			v.argonHashes = append(v.argonHashes, h)
		default:
			return nil, fmt.Errorf("api_keys[%d]: unrecognized hash format", i)
		}
	}
	return v, nil
}

// Enabled reports whether any keys are configured. An empty verifier
// leaves the facade open (localhost deployments).
func (v *KeyVerifier) Enabled() bool {
	return len(v.sha256Hashes) > 0 || len(v.argonHashes) > 0
}

// Verify reports whether rawKey matches any configured hash.
func (v *KeyVerifier) Verify(rawKey string) bool {
	sum := sha256.Sum256([]byte(rawKey))
	for _, want := range v.sha256Hashes {
		if subtle.ConstantTimeCompare(sum[:], want) == 1 {
			return true
		}
	}
	for _, h := range v.argonHashes {
		if match, err := compareArgon2id(rawKey, h); err == nil && match {
			return true
		}
	}
	return false
}

// compareArgon2id wraps the library comparison with panic recovery:
// malformed PHC parameters (t=0, p=0) panic inside argon2.
func compareArgon2id(rawKey, hash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, hash)
}

// AuthMiddleware enforces bearer-token API-key auth when the verifier
// has keys configured. /health and /metrics stay open for probes.
func AuthMiddleware(v *KeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Enabled() || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			if !v.Verify(strings.TrimPrefix(auth, "Bearer ")) {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
