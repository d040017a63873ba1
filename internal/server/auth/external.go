package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ExternalVerifier checks the signature of an identity-provider token, for
// example against the provider's JWKS. Without one, external tokens are
// only decoded and correlated, never cryptographically verified.
type ExternalVerifier interface {
	Verify(ctx context.Context, token string) error
}

// ExternalClaims is the subset of provider claims used for correlation.
type ExternalClaims struct {
	Subject   string
	Email     string
	Role      string
	Name      string
	Issuer    string
	ExpiresAt time.Time
}

// decodeExternal reads the payload segment of an external token without
// verifying its signature. A token without exp is rejected as malformed.
func decodeExternal(token string, now time.Time, issuer string) (*ExternalClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, common.ErrTokenMalformed
	}

	raw, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", common.ErrTokenMalformed, err)
	}

	claims := jwt.MapClaims{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", common.ErrTokenMalformed, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, common.ErrTokenMalformed
	}
	if !now.Before(exp.Time) {
		return nil, common.ErrTokenExpired
	}

	iss, _ := claims.GetIssuer()
	if issuer != "" && iss != issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", common.ErrTokenInvalidSignature)
	}

	sub, _ := claims.GetSubject()

	return &ExternalClaims{
		Subject:   strings.TrimSpace(sub),
		Email:     strings.ToLower(strings.TrimSpace(firstString(claims, "email", "email_address", "primary_email"))),
		Role:      roleClaim(claims),
		Name:      stringClaim(claims, "name"),
		Issuer:    iss,
		ExpiresAt: exp.Time,
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s := stringClaim(claims, k); s != "" {
			return s
		}
	}
	return ""
}

// roleClaim looks at a top-level role first, then public_metadata.role.
func roleClaim(claims jwt.MapClaims) string {
	if r := stringClaim(claims, "role"); r != "" {
		return r
	}
	if meta, ok := claims["public_metadata"].(map[string]any); ok {
		if r, ok := meta["role"].(string); ok {
			return r
		}
	}
	return ""
}
