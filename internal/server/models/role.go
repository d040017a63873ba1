package models

import "strings"

// Role is a canonical user category. Raw strings from tokens, requests or
// legacy rows go through NormalizeRole before anything branches on them.
type Role string

const (
	RoleParent    Role = "parent"
	RoleCaregiver Role = "caregiver"
	RoleAdmin     Role = "admin"
)

var roleSynonyms = map[string]Role{
	"parent":        RoleParent,
	"client":        RoleParent,
	"family":        RoleParent,
	"caregiver":     RoleCaregiver,
	"provider":      RoleCaregiver,
	"nanny":         RoleCaregiver,
	"sitter":        RoleCaregiver,
	"babysitter":    RoleCaregiver,
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
}

// NormalizeRole maps a surface role onto its canonical category.
// Matching ignores case and surrounding whitespace. Unknown values are
// returned unchanged (trimmed) so newer roles survive a round trip; use
// Known to tell them apart.
func NormalizeRole(raw string) Role {
	trimmed := strings.TrimSpace(raw)
	if r, ok := roleSynonyms[strings.ToLower(trimmed)]; ok {
		return r
	}
	return Role(trimmed)
}

// Known reports whether r is one of the canonical roles.
func (r Role) Known() bool {
	switch r {
	case RoleParent, RoleCaregiver, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
