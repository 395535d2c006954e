// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents an account.
//
// An account reaches the system through at least one credential path: a local
// password (PasswordHash) or a federated Google identity (ExternalID). Neither
// is ever serialised to clients.
//
// WHY ID int64?
// User ids are assigned by the database (INTEGER PRIMARY KEY / BIGSERIAL) and
// never change. They are what access and refresh tokens carry in user_id.
//
// WHY Email string (not *string)?
// Email is optional for password accounts. The repository stores "" as NULL so
// the UNIQUE constraint only applies to real addresses.
type User struct {
	ID           int64     `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	ExternalID   string    `json:"-"` // Google "sub"
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	DateOfBirth  string    `json:"dateOfBirth,omitempty"` // YYYY-MM-DD
	Bio          string    `json:"bio,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasPassword reports whether the account can log in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsFederated reports whether the account is linked to an external identity.
func (u *User) IsFederated() bool {
	return u.ExternalID != ""
}
