package qrtoken

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("secret", "attendify", time.Hour)

	token, err := s.Issue("CS101", "sess-1", "teacher-9")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "CS101", claims.ClassID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "teacher-9", claims.TeacherID)
	assert.Equal(t, PayloadType, claims.Type)
}

func TestSignerRejectsTamperedToken(t *testing.T) {
	s := NewSigner("secret", "attendify", time.Hour)
	token, err := s.Issue("CS101", "sess-1", "teacher-9")
	require.NoError(t, err)

	// flip a character in the signature segment
	tampered := token[:len(token)-2] + "xx"
	_, err = s.Parse(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRejectsWrongKey(t *testing.T) {
	a := NewSigner("key-a", "attendify", time.Hour)
	b := NewSigner("key-b", "attendify", time.Hour)

	token, err := a.Issue("CS101", "sess-1", "t")
	require.NoError(t, err)

	_, err = b.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRejectsWrongIssuer(t *testing.T) {
	a := NewSigner("secret", "other-app", time.Hour)
	b := NewSigner("secret", "attendify", time.Hour)

	token, err := a.Issue("CS101", "sess-1", "t")
	require.NoError(t, err)

	_, err = b.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRejectsExpiredToken(t *testing.T) {
	s := NewSigner("secret", "attendify", time.Minute)

	base := time.Now()
	s.now = func() time.Time { return base }
	token, err := s.Issue("CS101", "sess-1", "t")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(30 * time.Second) }
	_, err = s.Parse(token)
	assert.NoError(t, err, "token should still be valid within its TTL")

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerZeroTTLNeverExpires(t *testing.T) {
	s := NewSigner("secret", "attendify", 0)

	base := time.Now()
	s.now = func() time.Time { return base }
	token, err := s.Issue("CS101", "sess-1", "t")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(24 * 365 * time.Hour) }
	_, err = s.Parse(token)
	assert.NoError(t, err)
}

func TestSignerRejectsWrongPayloadType(t *testing.T) {
	s := NewSigner("secret", "attendify", time.Hour)

	claims := Claims{
		ClassID: "CS101",
		Type:    "password-reset",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "attendify",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRejectsUnsignedToken(t *testing.T) {
	s := NewSigner("secret", "attendify", time.Hour)

	claims := Claims{ClassID: "CS101", Type: PayloadType}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRejectsGarbage(t *testing.T) {
	s := NewSigner("secret", "attendify", time.Hour)
	for _, raw := range []string{"", "not-a-jwt", strings.Repeat("a.", 5)} {
		_, err := s.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, "input %q", raw)
	}
}
