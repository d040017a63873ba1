// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is the canonical internal identity. ExternalID is empty for users
// that only ever authenticated with locally issued credentials.
type User struct {
	ID           string
	ExternalID   string
	Email        string
	Name         string
	Role         Role
	PasswordHash []byte
	CreatedAt    time.Time
}
