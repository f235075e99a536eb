package ipn

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Verifier checks that a push message originates from the provider.
// Verification fails closed: an absent or wrong signature rejects the
// message before any side effect.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier over the shared notification secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the message signature over the raw body.
func (v *Verifier) Verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// Sign computes the signature the provider would attach to body. Used
// by tests and the local notification simulator.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
