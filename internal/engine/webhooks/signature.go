package webhooks

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// CanonicalJSON serializes a payload exactly as it is transmitted. Signing
// and verification must run over byte-identical input, so both the delivery
// client and the inbound verifier go through this single serialization
// (encoding/json sorts map keys, making re-marshaling of a decoded payload
// deterministic).
func CanonicalJSON(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

// SignBytes computes the HMAC-SHA256 hex digest of "{timestamp}.{body}".
func SignBytes(body []byte, timestamp, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func Sign(payload interface{}, timestampMillis int64, secret string) (string, error) {
	body, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	return SignBytes(body, strconv.FormatInt(timestampMillis, 10), secret), nil
}

// VerifyBytes recomputes the digest and compares in constant time. A
// candidate of the wrong length is simply not equal; it never panics.
func VerifyBytes(body []byte, timestamp, secret, candidate string) bool {
	expected := SignBytes(body, timestamp, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1
}

func Verify(payload interface{}, timestamp, secret, candidate string) bool {
	body, err := CanonicalJSON(payload)
	if err != nil {
		return false
	}
	return VerifyBytes(body, timestamp, secret, candidate)
}

// NewSecretKey returns 32 random bytes hex-encoded, the per-webhook signing
// secret generated once at creation.
func NewSecretKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
