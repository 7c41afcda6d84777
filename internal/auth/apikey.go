// Package auth implements signalgate's stateless client authentication:
// the API key header itself is the client identity, with no backing store
// or cache to look up.
package auth

import (
	"net/http"

	"signalgate/internal/record"
)

const (
	// headerName is the request header carrying the client's API key.
	headerName = "X-API-Key"
	// minKeyLength is the minimum accepted key length; the first 8 bytes
	// become the client ID.
	minKeyLength = 8
)

// APIKeyAuth implements record.Authenticator with a stateless rule: a
// missing or too-short key is rejected; otherwise the client ID is the
// key's first 8 characters.
type APIKeyAuth struct{}

// New returns a stateless API key authenticator.
func New() *APIKeyAuth { return &APIKeyAuth{} }

// Authenticate extracts and validates the client's API key, returning its
// derived client ID and the key itself.
func (a *APIKeyAuth) Authenticate(r *http.Request) (clientID, apiKey string, err error) {
	key := r.Header.Get(headerName)
	if len(key) < minKeyLength {
		return "", "", record.ErrClientAuth
	}
	return key[:minKeyLength], key, nil
}
