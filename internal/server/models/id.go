package models

import "github.com/google/uuid"

// CanonicalID parses a client-supplied identifier and returns its lower-case
// hyphenated form. uuid.Parse also accepts upper case, braces and the
// urn:uuid: prefix, all of which Postgres resolves to the same row, so ids
// must be canonical before they are compared, used as room names or folded
// into a direct conversation key.
func CanonicalID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
