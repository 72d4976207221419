package signature

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func fixedVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier(secret)
	v.Now = func() time.Time { return now }
	return v
}

func TestVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedVerifier("topsecret", now)

	body := []byte(`{"event":"message.delivered","message_id":"ext-1"}`)
	sig := Compute("topsecret", now.Unix(), "whk-123", body)

	if err := v.Verify("whk-123", "1700000000", sig, body); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedVerifier("topsecret", now)

	sig := Compute("topsecret", now.Unix(), "whk-123", []byte("original"))
	if err := v.Verify("whk-123", "1700000000", sig, []byte("tampered")); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedVerifier("topsecret", now)

	body := []byte("payload")
	sig := Compute("othersecret", now.Unix(), "whk-123", body)
	if err := v.Verify("whk-123", "1700000000", sig, body); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestVerifyMissingHeaders(t *testing.T) {
	v := fixedVerifier("topsecret", time.Unix(1700000000, 0))

	cases := []struct {
		name            string
		id, ts, sig     string
	}{
		{"no id", "", "1700000000", "v1,abc"},
		{"no timestamp", "whk-1", "", "v1,abc"},
		{"no signature", "whk-1", "1700000000", ""},
	}
	for _, tc := range cases {
		if err := v.Verify(tc.id, tc.ts, tc.sig, []byte("x")); !errors.Is(err, ErrMissingHeader) {
			t.Errorf("%s: expected ErrMissingHeader, got %v", tc.name, err)
		}
	}
}

// Tolerance is a hard boundary: 299s drift passes, 301s is rejected in both
// directions.
func TestVerifyReplayWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedVerifier("topsecret", now)
	body := []byte("payload")

	cases := []struct {
		name   string
		offset int64
		wantOK bool
	}{
		{"299s old", -299, true},
		{"301s old", -301, false},
		{"299s ahead", 299, true},
		{"301s ahead", 301, false},
	}
	for _, tc := range cases {
		ts := now.Unix() + tc.offset
		sig := Compute("topsecret", ts, "whk-1", body)
		err := v.Verify("whk-1", strconv.FormatInt(ts, 10), sig, body)
		if tc.wantOK && err != nil {
			t.Errorf("%s: expected accept, got %v", tc.name, err)
		}
		if !tc.wantOK && !errors.Is(err, ErrTimestampExpired) {
			t.Errorf("%s: expected ErrTimestampExpired, got %v", tc.name, err)
		}
	}
}
