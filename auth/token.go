// Package auth issues and validates the session tokens presented during the
// socket handshake. Tokens only carry identity; room authorization is
// decided per operation against the durable membership store.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the data stored inside the session token.
type SessionClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret   []byte
	duration time.Duration
}

func NewTokenIssuer(secret []byte, duration time.Duration) TokenIssuer {
	return TokenIssuer{secret: secret, duration: duration}
}

// Generate creates a signed session token for a user using HS256.
func (t TokenIssuer) Generate(userID, displayName string) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "livehub",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate parses a token string and checks its signature and expiration.
func (t TokenIssuer) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
