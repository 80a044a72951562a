package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.NoError(t, CheckPassword(hash, "secret1"))
	assert.ErrorIs(t, CheckPassword(hash, "secret2"), ErrInvalidCredentials)
}

func TestTokensRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tokens := Tokens{Secret: "s3cret", TTL: time.Hour, Now: func() time.Time { return now }}

	tok, err := tokens.Issue(42)
	require.NoError(t, err)
	id, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = Tokens{Secret: "other", Now: tokens.Now}.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := tokens
	later.Now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = later.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
