package livebooks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("segredo")
	token, err := svc.Generate(time.Minute)
	require.NoError(t, err)
	assert.NoError(t, svc.Validate(token))
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenService("segredo-a").Generate(time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, NewTokenService("segredo-b").Validate(token), ErrInvalidToken)
}

func TestTokenExpired(t *testing.T) {
	svc := NewTokenService("segredo")
	token, err := svc.Generate(-time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Validate(token), ErrInvalidToken)
}

func TestTokenGarbage(t *testing.T) {
	svc := NewTokenService("segredo")
	assert.ErrorIs(t, svc.Validate("not.a.token"), ErrInvalidToken)
}
