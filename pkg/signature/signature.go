package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Scheme: header carries "v1," + base64(HMAC-SHA256(secret, "{timestamp}.{message-id}.{rawBody}")).
// Timestamps are unix seconds and must fall within Tolerance of the verifier's clock,
// in either direction.

const (
	Prefix           = "v1,"
	DefaultTolerance = 300 * time.Second
)

var (
	ErrMissingHeader    = errors.New("signature: missing required header")
	ErrTimestampExpired = errors.New("signature: timestamp outside tolerance")
	ErrMismatch         = errors.New("signature: mismatch")
)

type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{Secret: secret, Tolerance: DefaultTolerance}
}

// Compute returns the full signature header value for the given parts.
func Compute(secret string, timestamp int64, messageID string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s.", timestamp, messageID)
	mac.Write(rawBody)
	return Prefix + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks header presence, replay window and signature, in that order.
// Any failure is an authentication failure for the caller.
func (v *Verifier) Verify(messageID, timestamp, sigHeader string, rawBody []byte) error {
	if messageID == "" || timestamp == "" || sigHeader == "" {
		return ErrMissingHeader
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("signature: bad timestamp %q: %w", timestamp, ErrMismatch)
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	delta := now.Unix() - ts
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Second > tolerance {
		return ErrTimestampExpired
	}

	expected := Compute(v.Secret, ts, messageID, rawBody)
	if !hmac.Equal([]byte(expected), []byte(sigHeader)) {
		return ErrMismatch
	}
	return nil
}
