// Package common contains shared constants and sentinel errors used across
// carenest components.
package common

// AccessTokenHeaderName is the legacy gRPC metadata key carrying a bare access
// token. AuthorizationHeaderName carries "Bearer <token>" and takes precedence.
const (
	AccessTokenHeaderName   = "access_token"
	AuthorizationHeaderName = "authorization"
	BearerPrefix            = "bearer "
)
