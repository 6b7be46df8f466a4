// Package admin implements the admin control surface: credential listing,
// disable toggling and load-balancing-mode get/set. It exposes plain Go
// functions a host HTTP server calls into directly; no net/http route
// table is registered here.
package admin

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Authenticator checks a bearer token against the configured admin key
// using a constant-time comparison over the tokens' hashes, so neither
// length nor content differences leak through timing.
type Authenticator struct {
	keyHash [sha256.Size]byte
}

func NewAuthenticator(adminKey string) *Authenticator {
	return &Authenticator{keyHash: sha256.Sum256([]byte(adminKey))}
}

func (a *Authenticator) Valid(token string) bool {
	if token == "" {
		return false
	}
	got := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(got[:], a.keyHash[:]) == 1
}
