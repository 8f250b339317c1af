package admincore

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var errUnsupportedJWT = errors.New("unsupported jwt signing method")

// adminClaims carries the admin principal's role alongside the standard
// registered claims (subject, expiry).
type adminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// jwtIssuer mints and verifies admin session JWTs signed with HS256.
type jwtIssuer struct {
	secret []byte
}

func newJWTIssuer(secret string) *jwtIssuer {
	return &jwtIssuer{secret: []byte(secret)}
}

// Issue mints a token for userID/role, expiring after ttl.
func (j *jwtIssuer) issue(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *jwtIssuer) verify(raw string) (adminClaims, error) {
	var claims adminClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnsupportedJWT
		}
		return j.secret, nil
	})
	if err != nil {
		return adminClaims{}, err
	}
	if !token.Valid {
		return adminClaims{}, jwt.ErrSignatureInvalid
	}
	return claims, nil
}
