// Package signature authenticates provider callbacks. The digest is computed
// over the exact raw request bytes: re-serialized JSON would change field
// order and whitespace and never match.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

var (
	ErrMissingSignature = errors.New("signature header missing")
	ErrInvalidSignature = errors.New("signature mismatch")
)

type Verifier struct {
	secret   []byte
	encoding Encoding
}

func NewVerifier(secret string, encoding Encoding) *Verifier {
	if encoding != EncodingBase64 {
		encoding = EncodingHex
	}
	return &Verifier{secret: []byte(secret), encoding: encoding}
}

// Enabled reports whether a secret is configured. With no secret the verifier
// skips authentication entirely, an explicit trust decision for
// non-production use.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify checks the provider signature header against an HMAC-SHA256 of the
// raw body. A configured secret with a missing header is a hard rejection,
// never a silent pass. Malformed headers count as verification failure.
func (v *Verifier) Verify(rawBody []byte, header string) error {
	if !v.Enabled() {
		return nil
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	sum := mac.Sum(nil)

	var expected string
	if v.encoding == EncodingBase64 {
		expected = base64.StdEncoding.EncodeToString(sum)
	} else {
		expected = hex.EncodeToString(sum)
	}

	// hmac.Equal is a constant-time comparison; a byte-wise short-circuit
	// would leak a timing side channel.
	if !hmac.Equal([]byte(expected), []byte(header)) {
		return ErrInvalidSignature
	}
	return nil
}
