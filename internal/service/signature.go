package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"summit-webhook/internal/model"
)

type Verdict int

const (
	SignatureInvalid Verdict = iota
	SignatureVerified
	// SignatureSkipped means no usable secret is configured. Requests are
	// let through unauthenticated and must be flagged as such.
	SignatureSkipped
)

func (v Verdict) String() string {
	switch v {
	case SignatureVerified:
		return model.SignatureVerified
	case SignatureSkipped:
		return model.SignatureSkipped
	default:
		return model.SignatureInvalid
	}
}

type Verifier struct {
	secret  []byte
	enabled bool
}

// NewVerifier returns a verifier for the shared secret. enabled=false puts
// the verifier in degraded mode regardless of secret.
func NewVerifier(secret string, enabled bool) *Verifier {
	return &Verifier{
		secret:  []byte(strings.TrimSpace(secret)),
		enabled: enabled && strings.TrimSpace(secret) != "",
	}
}

func (v *Verifier) Enabled() bool {
	return v.enabled
}

// Verify checks a hex HMAC-SHA256 of the exact request body. The header may
// carry a "sha256=" prefix.
func (v *Verifier) Verify(body []byte, signature string) Verdict {
	if !v.enabled {
		return SignatureSkipped
	}

	sig := strings.TrimSpace(signature)
	if i := strings.IndexByte(sig, '='); i >= 0 && strings.EqualFold(sig[:i], "sha256") {
		sig = sig[i+1:]
	}
	if sig == "" {
		return SignatureInvalid
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return SignatureInvalid
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), decoded) {
		return SignatureInvalid
	}
	return SignatureVerified
}

// SignatureHeader returns the provider signature, trying
// "x-<provider>-signature" before "<provider>-signature".
func SignatureHeader(headers http.Header, provider string) string {
	for _, name := range []string{"X-" + provider + "-Signature", provider + "-Signature"} {
		if v := headers.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// Sign is the counterpart of Verify, used by tests and the replay tooling.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
