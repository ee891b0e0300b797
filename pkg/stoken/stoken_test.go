package stoken_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platefeed/server/pkg/stoken"
)

var secret = []byte("test-secret")

func TestMintAndValidate(t *testing.T) {
	token, err := stoken.New("u1", stoken.AccessToken, time.Hour, secret)
	require.NoError(t, err)

	claims, err := stoken.Validate(token, stoken.AccessToken, secret)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, stoken.AccessToken, claims.TokenType)
	require.NotEmpty(t, claims.ID)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := stoken.New("u1", stoken.AccessToken, time.Hour, secret)
	require.NoError(t, err)

	_, err = stoken.Validate(token, stoken.AccessToken, []byte("other-secret"))
	require.ErrorIs(t, err, stoken.ErrInvalidToken)
}

func TestValidateRejectsWrongType(t *testing.T) {
	token, err := stoken.New("u1", stoken.RefreshToken, time.Hour, secret)
	require.NoError(t, err)

	_, err = stoken.Validate(token, stoken.AccessToken, secret)
	require.ErrorIs(t, err, stoken.ErrWrongTokenType)
}

func TestValidateRejectsExpired(t *testing.T) {
	token, err := stoken.New("u1", stoken.AccessToken, -time.Minute, secret)
	require.NoError(t, err)

	_, err = stoken.Validate(token, stoken.AccessToken, secret)
	require.ErrorIs(t, err, stoken.ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := stoken.Validate("not-a-jwt", stoken.AccessToken, secret)
	require.ErrorIs(t, err, stoken.ErrInvalidToken)
}

func TestTokensCarryUniqueIDs(t *testing.T) {
	first, err := stoken.New("u1", stoken.AccessToken, time.Hour, secret)
	require.NoError(t, err)
	second, err := stoken.New("u1", stoken.AccessToken, time.Hour, secret)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
