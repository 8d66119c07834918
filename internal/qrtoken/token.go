// Package qrtoken mints and verifies the signed payloads embedded in the
// QR code a teacher displays during an attendance session.
package qrtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PayloadType marks a token as an attendance QR payload; scans carrying
// any other type are rejected.
const PayloadType = "attendance"

// ErrInvalidToken covers bad signatures, malformed payloads, wrong payload
// type, and expired tokens.
var ErrInvalidToken = errors.New("invalid QR token")

// Claims is the payload embedded in the QR image. A scan is valid only for
// the class and session it was minted for; it identifies the class and
// session, not the student presenting it.
type Claims struct {
	ClassID   string `json:"classId"`
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	TeacherID string `json:"teacherId"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256-signed QR session tokens.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. ttl bounds how long a displayed QR code
// remains scannable; zero means tokens never expire.
func NewSigner(key, issuer string, ttl time.Duration) *Signer {
	return &Signer{key: []byte(key), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue mints a signed token for one class meeting.
func (s *Signer) Issue(classID, sessionID, teacherID string) (string, error) {
	now := s.now()
	claims := Claims{
		ClassID:   classID,
		SessionID: sessionID,
		Type:      PayloadType,
		TeacherID: teacherID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse validates a scanned token and returns its claims.
func (s *Signer) Parse(raw string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != PayloadType {
		return Claims{}, ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
