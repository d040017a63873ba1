package auth

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind says which verification path a bearer token should take.
type TokenKind int

const (
	KindUnknown TokenKind = iota
	KindLocal
	KindExternal
)

func (k TokenKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// segmentParser decodes base64url segments with or without padding.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Classifier inspects the unverified JOSE header of a token.
//
// The result is advisory: each path verifies independently and rejects
// algorithms outside its own family.
//
// In the default (permissive) mode a header that cannot be decoded, or
// that has no recognisable alg, is routed to the external path. With Strict
// set those tokens are UNKNOWN and get rejected up front.
type Classifier struct {
	Strict bool
}

// Classify uses the permissive default Classifier.
func Classify(token string) TokenKind {
	return Classifier{}.Classify(token)
}

// Classify never panics; anything that is not three dot-separated segments
// is KindUnknown.
func (c Classifier) Classify(token string) TokenKind {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return KindUnknown
	}

	raw, err := segmentParser.DecodeSegment(parts[0])
	if err != nil {
		return c.fallback()
	}

	var header struct {
		Alg any `json:"alg"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return c.fallback()
	}

	alg, _ := header.Alg.(string)
	switch {
	case strings.HasPrefix(alg, "HS"):
		return KindLocal
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "ES"),
		strings.HasPrefix(alg, "PS"), alg == "EdDSA":
		return KindExternal
	default:
		return c.fallback()
	}
}

func (c Classifier) fallback() TokenKind {
	if c.Strict {
		return KindUnknown
	}
	return KindExternal
}
