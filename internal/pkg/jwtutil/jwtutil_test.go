package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("s3cret", "ops", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, "ops", claims.Subject)
}

func TestParseToken_Rejects(t *testing.T) {
	token, err := GenerateToken("s3cret", "ops", time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken("s3cret", "ops", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("s3cret", "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = GenerateToken("", "ops", time.Minute)
	assert.Error(t, err)
}
