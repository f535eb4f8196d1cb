package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudotcom/electron/internal/identity"
)

func TestNewSessionToken(t *testing.T) {
	token, err := identity.NewSessionToken()
	require.NoError(t, err)

	assert.Len(t, token, identity.SessionTokenLength)
	for _, r := range token {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		assert.True(t, ok, "unexpected character %q in session token", r)
	}
}

func TestNewSessionTokenUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		token, err := identity.NewSessionToken()
		require.NoError(t, err)

		_, dup := seen[token]
		require.False(t, dup, "duplicate session token generated")
		seen[token] = struct{}{}
	}
}
