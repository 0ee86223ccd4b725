package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	userID := uuid.New()

	token, err := v.Issue(userID, "alice", time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewVerifier("test-secret")
	userID := uuid.New()

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	expiredStr, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	wrongKey, err := v.Issue(userID, "alice", time.Hour)
	require.NoError(t, err)
	other := NewVerifier("other-secret")

	tests := []struct {
		name  string
		v     *Verifier
		token string
	}{
		{"Empty", v, ""},
		{"Expired", v, expiredStr},
		{"WrongKey", other, wrongKey},
		{"Garbage", v, "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.v.Verify(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestVerifyRequiresUserClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = NewVerifier("test-secret").Verify(signed)
	assert.Error(t, err)
}
