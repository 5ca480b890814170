package auth

import (
	"testing"
	"time"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	c := newTokenCodec("test-signing-key", time.Hour)
	issuedAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	raw, expiresAt, err := c.issue("tok-1", "user-1", issuedAt)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(time.Hour), expiresAt)

	userID, err := c.verify(raw, issuedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	c := newTokenCodec("test-signing-key", time.Minute)
	issuedAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	raw, _, err := c.issue("tok-1", "user-1", issuedAt)
	require.NoError(t, err)

	_, err = c.verify(raw, issuedAt.Add(2*time.Minute))
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Expired, ae.Kind)
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	issuer := newTokenCodec("key-a", time.Hour)
	verifier := newTokenCodec("key-b", time.Hour)
	issuedAt := time.Now()

	raw, _, err := issuer.issue("tok-1", "user-1", issuedAt)
	require.NoError(t, err)

	_, err = verifier.verify(raw, issuedAt)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Malformed, ae.Kind)
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	c := newTokenCodec("test-signing-key", time.Hour)

	_, err := c.verify("not-a-jwt", time.Now())
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Malformed, ae.Kind)
}
