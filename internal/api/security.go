package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/lumenshop/checkout/internal/domain/auth"
)

type adminNameKey struct{}

// adminName returns the name of the authenticated admin key, empty outside
// requireAdmin-wrapped handlers.
func adminName(r *http.Request) string {
	name, _ := r.Context().Value(adminNameKey{}).(string)
	return name
}

const apiKeyHeader = "X-API-Key"

// isAdmin reports whether the request carries a valid API key with the
// admin scope, without writing a response.
func (h *Handler) isAdmin(r *http.Request) bool {
	key := r.Header.Get(apiKeyHeader)
	if key == "" {
		return false
	}
	hash := sha256.Sum256([]byte(key))
	info, err := h.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash[:]))
	if err != nil {
		return false
	}
	storedBytes, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(hash[:], storedBytes) == 1 && info.HasScope(auth.ScopeAdmin)
}

// requireAdmin authenticates the request by hashing the provided API key,
// looking it up in the repository, and performing a constant-time comparison
// to prevent timing attacks. The key must carry the admin scope.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing api key")
			return
		}
		hash := sha256.Sum256([]byte(key))
		hexHash := hex.EncodeToString(hash[:])

		info, err := h.apikeys.FindByHash(r.Context(), hexHash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
			return
		}
		storedBytes, err := hex.DecodeString(info.KeyHash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
			return
		}
		if subtle.ConstantTimeCompare(hash[:], storedBytes) != 1 {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
			return
		}
		if !info.HasScope(auth.ScopeAdmin) {
			writeError(w, http.StatusForbidden, codeUnauthorized, "admin scope required")
			return
		}
		ctx := context.WithValue(r.Context(), adminNameKey{}, info.Name)
		next(w, r.WithContext(ctx))
	}
}
