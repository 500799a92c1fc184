// Package pii normalizes and hashes identity fields before they leave the
// process. Raw emails and phone numbers never reach a destination or a log.
package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256Hex returns the lowercase hex SHA-256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips every non-digit character. No country-code handling;
// an existing country prefix survives as digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsHex64 reports whether v looks like an already-computed SHA-256 hex digest.
func IsHex64(v string) bool {
	if len(v) != 64 {
		return false
	}
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// HashUserData maps a raw identity object to hashed Conversions API fields.
// Fields already hashed upstream (64-hex) pass through unchanged; external_id
// is never hashed. Absent inputs produce absent outputs.
func HashUserData(src map[string]any) map[string]string {
	out := make(map[string]string)

	if em := firstString(src, "em", "email"); em != "" {
		if IsHex64(em) {
			out["em"] = em
		} else {
			out["em"] = SHA256Hex(NormalizeEmail(em))
		}
	}

	if ph := firstString(src, "ph", "phone"); ph != "" {
		if IsHex64(ph) {
			out["ph"] = ph
		} else if digits := NormalizePhone(ph); digits != "" {
			out["ph"] = SHA256Hex(digits)
		}
	}

	if id := firstString(src, "external_id"); id != "" {
		out["external_id"] = id
	}

	// Any other key is an identity field the caller supplies directly (fn,
	// ln, db and friends). Pre-hashed values pass through; raw values get
	// the standard lowercase-and-trim hashing.
	for k, v := range src {
		switch k {
		case "em", "email", "ph", "phone", "external_id":
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if IsHex64(s) {
			out[k] = s
		} else {
			out[k] = SHA256Hex(strings.ToLower(strings.TrimSpace(s)))
		}
	}

	return out
}

func firstString(src map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := src[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
