// ABOUTME: Credential extraction from websocket handshake requests
// ABOUTME: Accepts Authorization bearer headers or an access_token query parameter

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoCredential indicates the handshake carried no usable credential.
var ErrNoCredential = errors.New("missing credential")

// CredentialFromRequest extracts the bearer credential from a handshake
// request. The Authorization header wins; browser websocket clients cannot
// set headers, so an access_token query parameter is accepted as fallback.
func CredentialFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", ErrNoCredential
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", ErrNoCredential
		}
		return token, nil
	}

	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, nil
	}

	return "", ErrNoCredential
}
