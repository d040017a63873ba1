package models

import "time"

// RefreshToken is an opaque, single-use credential issued alongside a locally
// signed access token. Consuming it deletes the row, so a token can rotate
// at most once.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}

// ExpiredAt reports whether the token can no longer be exchanged at now.
// A token is dead from its expiry instant onwards.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.Expires)
}
