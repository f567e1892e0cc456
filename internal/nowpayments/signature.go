package nowpayments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
)

var (
	ErrBadSignature     = errors.New("ipn signature mismatch")
	ErrMissingSignature = errors.New("ipn signature header missing")
)

// Sign computes the IPN signature: HMAC-SHA512 over the JSON payload with
// its keys sorted, hex encoded. This mirrors how the provider signs the
// callback body before setting x-nowpayments-sig.
func Sign(payload []byte, secret string) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature checks a callback body against the header signature.
// Comparison is constant time; any mismatch is ErrBadSignature.
func VerifySignature(payload []byte, signature, secret string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	expected, err := Sign(payload, secret)
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// canonicalJSON re-serializes a JSON object with deterministically sorted
// keys. Encoding sorts map keys at every nesting level, and decoding with
// UseNumber keeps numeric literals byte-identical to the input. HTML
// escaping must stay off: the provider signs raw `&`, `<`, `>` bytes, so
// escaping them would change the signed bytes.
func canonicalJSON(payload []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(fields); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
