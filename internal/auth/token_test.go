package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("super-secret", time.Hour)
	tok, exp, err := tm.Issue("user-123")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 2*time.Second)

	userID, err := tm.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestDefaultTTLIsOneDay(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("k", 0)
	_, exp, err := tm.Issue("u1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, 2*time.Second)
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("secret", time.Hour)
	tok, _, err := tm.Issue("u1")
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	tok, _, err := NewTokenManager("right-secret", time.Hour).Issue("u2")
	require.NoError(t, err)

	_, err = NewTokenManager("wrong-secret", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("k", time.Hour)
	for _, tok := range []string{"", "not.a.jwt", "abc"} {
		_, err := tm.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, tok)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	claims := &Claims{
		UserID: "u3",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u3",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = NewTokenManager("k", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	t.Parallel()

	claims := &Claims{UserID: "u4", RegisteredClaims: jwt.RegisteredClaims{Subject: "u4"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = NewTokenManager("k", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueIsIndependentPerCall(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("k", time.Hour)
	first, _, err := tm.Issue("u5")
	require.NoError(t, err)
	tm.now = func() time.Time { return time.Now().Add(time.Second) }
	second, _, err := tm.Issue("u5")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	for _, tok := range []string{first, second} {
		userID, err := tm.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, "u5", userID)
	}
}
