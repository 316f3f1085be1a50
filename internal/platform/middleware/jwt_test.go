package middleware

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
)

var (
	validator = NewHS256Validator("test-signing-key", "test-issuer")
	userID    = id.UserID(uuid.New())
)

func Test_GenerateAndValidateAccessToken(t *testing.T) {
	token, err := validator.GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := validator.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := validator.GenerateAccessToken(userID, -time.Hour)
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "token has expired")
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewHS256Validator("another-key", "test-issuer")
	token, err := other.GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongIssuer(t *testing.T) {
	other := NewHS256Validator("test-signing-key", "someone-else")
	token, err := other.GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	require.Error(t, err)
}
