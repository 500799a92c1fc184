// Package signature verifies HMAC-SHA256 signatures over raw webhook bodies.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// Result classifies a verification attempt.
type Result int

const (
	OK Result = iota
	Missing
	Invalid
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case Missing:
		return "missing_signature"
	default:
		return "invalid_signature"
	}
}

// Accepted signature headers, checked in order; the first one present wins.
var signatureHeaders = []string{
	"X-Signature",
	"X-Signature-Hmac",
	"X-Hub-Signature-256",
}

// Verify checks the HMAC-SHA256 signature of raw against the request headers.
// The digest must be computed over the exact raw body bytes; re-serialized
// JSON is not byte-stable and will not verify.
//
// An empty secret disables verification entirely. That default-open posture is
// intentional for first deployment; the operator owns turning it on.
func Verify(raw []byte, header http.Header, secret string) Result {
	if secret == "" {
		return OK
	}

	got := ""
	for _, name := range signatureHeaders {
		if v := strings.TrimSpace(header.Get(name)); v != "" {
			got = v
			break
		}
	}
	if got == "" {
		return Missing
	}

	// Accept both "sha256=<hex>" and a bare hex digest.
	if i := strings.Index(got, "="); i >= 0 {
		got = got[i+1:]
	}
	got = strings.ToLower(got)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !constantTimeEqual(expected, got) {
		return Invalid
	}
	return OK
}

// constantTimeEqual compares two digest strings without leaking their length
// difference: both sides are hashed to a fixed size first.
func constantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
