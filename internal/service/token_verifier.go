package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "typ" claim. Tokens are issued by the
// identity service; this engine only verifies them.
const (
	TokenTypeStudent    = "student"
	TokenTypeInstructor = "instructor"
)

// Claims is the JWT payload this engine understands.
type Claims struct {
	StudentID int    `json:"student_id,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer tokens against the shared HMAC secret.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a new TokenVerifier.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// ValidateToken parses and verifies a token string, returning its claims.
func (v *TokenVerifier) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
