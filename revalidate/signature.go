package revalidate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix ms>,v1=<base64url HMAC-SHA256 of "<t>.<body>">".
const SignatureHeader = "sanity-webhook-signature"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingType      = errors.New("missing _type in webhook body")
	ErrMalformedPayload = errors.New("malformed webhook body")
)

// Sign returns the signature header value for body sent at t.
func Sign(secret, body []byte, t time.Time) string {
	ts := strconv.FormatInt(t.UnixMilli(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, digest(secret, ts, body))
}

// Verify checks header against body. A non-zero tolerance also rejects
// signatures older or newer than tolerance relative to now.
func Verify(secret []byte, header string, body []byte, now time.Time, tolerance time.Duration) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: no secret configured", ErrInvalidSignature)
	}
	ts, sig, err := parseHeader(header)
	if err != nil {
		return err
	}
	expected := digest(secret, ts, body)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	if tolerance > 0 {
		ms, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
		}
		age := now.Sub(time.UnixMilli(ms))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}
	return nil
}

func parseHeader(header string) (ts, sig string, err error) {
	if strings.TrimSpace(header) == "" {
		return "", "", fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return "", "", fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	return ts, sig, nil
}

func digest(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
