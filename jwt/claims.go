package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned for tokens that are not compact JWS strings.
var ErrNotJWT = errors.New("token is not a JWT")

// Claims is the subset of a user token the engine looks at.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
}

// Inspect decodes the claims of token without verifying its signature.
// Opaque (non-JWT) tokens yield ErrNotJWT.
func Inspect(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrNotJWT
	}

	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &registered); err != nil {
		return nil, errors.Join(ErrNotJWT, err)
	}

	out := &Claims{
		Subject:  registered.Subject,
		Issuer:   registered.Issuer,
		Audience: []string(registered.Audience),
	}
	if registered.ExpiresAt != nil {
		out.ExpiresAt = registered.ExpiresAt.Time
	}
	return out, nil
}

// IsExchangeable reports whether any audience of token starts with prefix.
// Tokens that cannot be decoded are not exchangeable.
func IsExchangeable(token, prefix string) bool {
	if prefix == "" {
		return false
	}
	claims, err := Inspect(token)
	if err != nil {
		return false
	}
	for _, aud := range claims.Audience {
		if strings.HasPrefix(aud, prefix) {
			return true
		}
	}
	return false
}

// ExpiresAt returns the exp claim of token, or false when the token is
// opaque or carries no expiry.
func ExpiresAt(token string) (time.Time, bool) {
	claims, err := Inspect(token)
	if err != nil || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}
