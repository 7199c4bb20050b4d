package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters!!"

func TestIssueAndValidate(t *testing.T) {
	tok, exp, err := IssueToken(testSecret, "user_1", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := ValidateToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.UserID)
}

func TestValidateRejects(t *testing.T) {
	expired, _, err := IssueToken(testSecret, "user_1", -time.Minute)
	require.NoError(t, err)

	wrongKey, _, err := IssueToken("another-secret", "user_1", time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user_1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, _, err := IssueToken(testSecret, "", time.Hour)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"alg none":  unsigned,
		"no user":   noUser,
		"garbage":   "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(testSecret, tok)
			assert.Error(t, err)
		})
	}
}
