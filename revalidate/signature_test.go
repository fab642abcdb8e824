package revalidate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	secret = []byte("s3cret")
	at     = time.UnixMilli(1730534400000)
)

func TestSignRoundTrip(t *testing.T) {
	body := []byte(`{"_type":"post","slug":{"current":"hello"}}`)
	header := Sign(secret, body, at)

	assert.True(t, strings.HasPrefix(header, "t=1730534400000,v1="))
	sig := strings.TrimPrefix(header, "t=1730534400000,v1=")
	assert.NotContains(t, sig, "=")
	assert.NotContains(t, sig, "+")
	assert.NotContains(t, sig, "/")
	require.NoError(t, Verify(secret, header, body, at, 0))
}

func TestVerifyRejects(t *testing.T) {
	body := []byte(`{"_type":"post"}`)
	good := Sign(secret, body, at)

	tests := []struct {
		name   string
		secret []byte
		header string
		body   []byte
	}{
		{name: "no secret", secret: nil, header: good, body: body},
		{name: "no header", secret: secret, header: "", body: body},
		{name: "garbage header", secret: secret, header: "nonsense", body: body},
		{name: "missing v1", secret: secret, header: "t=1730534400000", body: body},
		{name: "tampered body", secret: secret, header: good, body: []byte(`{"_type":"page"}`)},
		{name: "wrong secret", secret: []byte("other"), header: good, body: body},
		{name: "tampered timestamp", secret: secret, header: strings.Replace(good, "t=1730534400000", "t=1730534400001", 1), body: body},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.secret, tt.header, tt.body, at, 0)
			assert.True(t, errors.Is(err, ErrInvalidSignature), "got %v", err)
		})
	}
}

func TestVerifyTolerance(t *testing.T) {
	body := []byte(`{}`)
	header := Sign(secret, body, at)

	require.NoError(t, Verify(secret, header, body, at.Add(4*time.Minute), 5*time.Minute))
	assert.ErrorIs(t, Verify(secret, header, body, at.Add(6*time.Minute), 5*time.Minute), ErrInvalidSignature)
	assert.ErrorIs(t, Verify(secret, header, body, at.Add(-6*time.Minute), 5*time.Minute), ErrInvalidSignature)
	require.NoError(t, Verify(secret, header, body, at.Add(time.Hour), 0))
}
