package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainToken(t *testing.T) {
	tokens, err := NewTokens("s3cret", "")
	require.NoError(t, err)
	assert.NoError(t, tokens.Check("s3cret"))
	assert.ErrorIs(t, tokens.Check("nope"), ErrInvalidToken)
	assert.ErrorIs(t, tokens.Check(""), ErrMissingToken)
}

func TestHashedToken(t *testing.T) {
	hash, err := HashToken("s3cret")
	require.NoError(t, err)
	tokens, err := NewTokens("", hash)
	require.NoError(t, err)
	assert.NoError(t, tokens.Check("s3cret"))
	assert.ErrorIs(t, tokens.Check("s3cret "), ErrInvalidToken)
}

func TestRejectsMalformedHash(t *testing.T) {
	_, err := NewTokens("", "not-a-hash")
	assert.Error(t, err)
}

func TestDisabledAcceptsAnything(t *testing.T) {
	tokens, err := NewTokens("", "")
	require.NoError(t, err)
	assert.False(t, tokens.Enabled())
	assert.NoError(t, tokens.Check(""))
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range cases {
		assert.Equal(t, want, BearerToken(header), "header %q", header)
	}
}
