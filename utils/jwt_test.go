package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshline/config"
)

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.EncryptionKey = "test-signing-key"

	token, err := GenerateJWTToken("dashboard")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", claims.Subject)
}

func TestParseJWTTokenRejectsWrongKey(t *testing.T) {
	config.AppConfig.EncryptionKey = "test-signing-key"
	token, err := GenerateJWTToken("dashboard")
	require.NoError(t, err)

	config.AppConfig.EncryptionKey = "a-different-key"
	_, err = ParseJWTToken(token)
	assert.Error(t, err)
}

func TestParseJWTTokenRejectsGarbage(t *testing.T) {
	config.AppConfig.EncryptionKey = "test-signing-key"
	_, err := ParseJWTToken("not.a.token")
	assert.Error(t, err)
}
