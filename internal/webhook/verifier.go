package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the provider's timestamped HMAC signature.
const SignatureHeader = "Stripe-Signature"

var (
	// ErrMissingSignature signals that the signature header is absent or
	// structurally unusable.
	ErrMissingSignature = errors.New("webhook: missing or malformed signature header")
	// ErrSignatureMismatch signals that no v1 signature matched the computed
	// HMAC.
	ErrSignatureMismatch = errors.New("webhook: signature mismatch")
	// ErrTimestampOutOfRange signals that the signed timestamp falls outside
	// the replay tolerance window.
	ErrTimestampOutOfRange = errors.New("webhook: timestamp outside tolerance")
	// ErrMalformedPayload signals that a correctly signed body failed to parse.
	ErrMalformedPayload = errors.New("webhook: malformed payload")
)

// IsSignatureError reports whether err is one of the verification failures
// that must map to 401.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrTimestampOutOfRange)
}

// Verifier checks the provider's signature scheme: the header carries
// t=<unix>,v1=<hex> pairs and v1 is HMAC-SHA256(secret, "<t>.<body>").
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

// ComputeSignature returns the hex HMAC for a timestamp and body. Exposed so
// tests and local tooling can mint valid headers.
func ComputeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify validates the signature header against the raw body. The timestamp
// check runs only after at least one v1 candidate is present, and the HMAC
// comparison is constant time.
func (v *Verifier) Verify(header string, body []byte) error {
	ts, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	age := now().Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return ErrTimestampOutOfRange
	}

	expected := ComputeSignature(v.Secret, ts, body)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

func parseSignatureHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, ErrMissingSignature
	}

	var ts int64 = -1
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMissingSignature
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, strings.ToLower(value))
		}
	}
	if ts < 0 || len(candidates) == 0 {
		return 0, nil, ErrMissingSignature
	}
	return ts, candidates, nil
}
