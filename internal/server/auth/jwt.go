// Package auth turns bearer credentials into a canonical Session.
//
// Two kinds of tokens are accepted: HS-family JWTs issued by this service
// (LOCAL) and asymmetric JWTs minted by an external identity provider
// (EXTERNAL). Classify picks the path from the unverified header; the
// Resolver then verifies and correlates the token to one internal user.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard claims plus the internal user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
}

var localMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// GenerateToken issues an HS256 access token for userID.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// parseLocal verifies a locally issued token. Only HS-family algorithms are
// accepted, so a token whose header was forged to look local but is signed
// with anything else fails here instead of being trusted.
func parseLocal(tokenString string, secretKey []byte, now func() time.Time) (*Claims, error) {
	claims := &Claims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods(localMethods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)

	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !token.Valid {
		return nil, common.ErrTokenInvalidSignature
	}
	if claims.UserID == "" {
		return nil, common.ErrTokenMalformed
	}

	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return common.ErrTokenInvalidSignature
	default:
		return common.ErrTokenMalformed
	}
}
