// Package auth issues and verifies the session tokens that bind a browser to
// one player in one room.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "authorization"
	issuer     = "roomsync"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims is the resolved identity carried by a token.
type Claims struct {
	PlayerID string
	RoomID   string
	Name     string
	Role     string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	RoomID string `json:"room_id"`
	Name   string `json:"user_name"`
	Role   string `json:"role"`
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(c Claims) (string, error) {
	now := i.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   c.PlayerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		RoomID: c.RoomID,
		Name:   c.Name,
		Role:   c.Role,
	})
	signed, err := tok.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// A "Bearer " prefix is accepted. Every failure wraps ErrInvalidToken.
func (i *Issuer) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if parsed.Subject == "" || parsed.RoomID == "" {
		return Claims{}, fmt.Errorf("%w: missing subject or room", ErrInvalidToken)
	}
	return Claims{
		PlayerID: parsed.Subject,
		RoomID:   parsed.RoomID,
		Name:     parsed.Name,
		Role:     parsed.Role,
	}, nil
}
