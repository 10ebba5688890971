// Package auth guards the admin surface with HS256-signed bearer tokens.
package auth

import (
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	// ErrTokenInvalid signals that the token failed signature or claim checks.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrRoleForbidden signals a valid token without the admin role.
	ErrRoleForbidden = errors.New("auth: role forbidden")
)

// TokenValidator parses and validates admin bearer tokens.
type TokenValidator struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Validate checks the raw token's signature and claims and returns the subject
// when the token carries the admin role.
func (v *TokenValidator) Validate(raw string) (string, error) {
	token, err := jwt.ParseString(raw,
		jwt.WithKey(jwa.HS256, v.Secret),
		jwt.WithValidate(false),
	)
	if err != nil {
		return "", ErrTokenInvalid
	}

	opts := []jwt.ValidateOption{jwt.WithAcceptableSkew(v.skew())}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(token, opts...); err != nil {
		return "", ErrTokenInvalid
	}

	role, ok := token.Get("role")
	if !ok {
		return "", ErrRoleForbidden
	}
	if s, ok := role.(string); !ok || s != "admin" {
		return "", ErrRoleForbidden
	}
	return token.Subject(), nil
}

func (v *TokenValidator) skew() time.Duration {
	if v.ClockSkew > 0 {
		return v.ClockSkew
	}
	return time.Minute
}
