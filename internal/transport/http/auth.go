package http

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized rejects admin registration with a missing or invalid token.
var ErrUnauthorized = errors.New("invalid admin token")

// TokenValidator checks the bearer token presented on admin_joined and
// returns the admin's subject identity. Token issuance lives outside
// this service; validation is a registration precondition only.
type TokenValidator interface {
	Validate(token string) (subject string, err error)
}

// JWTValidator validates HS256-signed bearer tokens against a shared secret.
type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

func (v *JWTValidator) Validate(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrUnauthorized
	}
	return subject, nil
}

// AllowAll accepts any token; used when no admin secret is configured
// (demo mode and tests).
type AllowAll struct{}

func (AllowAll) Validate(string) (string, error) {
	return "admin", nil
}
