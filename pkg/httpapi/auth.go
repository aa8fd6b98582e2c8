package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const (
	// SecretHeader carries the shared secret verbatim
	SecretHeader = "X-Shopagent-Secret"
	// SignatureHeader carries hex(HMAC-SHA256(secret, body)) as an alternative
	SignatureHeader = "X-Shopagent-Signature"
)

// Authenticator checks callers against a shared secret. An empty secret
// disables the check.
type Authenticator struct {
	sharedSecret string
}

// NewAuthenticator creates an authenticator for secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{sharedSecret: secret}
}

// Enabled reports whether requests must be authenticated
func (a *Authenticator) Enabled() bool {
	return a != nil && a.sharedSecret != ""
}

// CheckSecret compares a presented secret in constant time. A "Bearer " prefix
// is accepted.
func (a *Authenticator) CheckSecret(presented string) bool {
	presented = strings.TrimSpace(strings.TrimPrefix(presented, "Bearer "))
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.sharedSecret), []byte(presented)) == 1
}

// Sign returns the hex HMAC-SHA256 of body
func (a *Authenticator) Sign(body []byte) string {
	h := hmac.New(sha256.New, []byte(a.sharedSecret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a body signature in constant time
func (a *Authenticator) VerifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := a.Sign(body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}
