package model

import (
	"strings"
	"time"
)

// Role is the closed set of account roles.  Branching on roles happens in
// the access package; everything else passes a Role around opaquely.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, true
	}
	return "", false
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// User represents an account record as stored in the `users` table.  The
// password hash never leaves the server; handlers build their own response
// types without it.
//
// Fields:
//  ID           – opaque identifier (uuid string).
//  Name         – display name.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hash of the password.
//  Role         – PATIENT, DOCTOR or ADMIN.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           string    // users.id
	Name         string    // users.name
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         Role      // users.role
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored; TokenHash is the SHA-256 hex digest of it and
// doubles as the primary key.  ReplacedByHash links a rotated token to its
// successor so the rotation chain can be walked.
//
// Fields:
//  TokenHash      – SHA-256 hex digest of the token value (primary key).
//  UserID         – owner of the token.
//  ExpiresAt      – expiration timestamp of the token.
//  RevokedAt      – when the token was revoked (nil while active).
//  ReplacedByHash – hash of the successor token after rotation (nil otherwise).
//  CreatedAt      – timestamp of creation.
type RefreshToken struct {
	TokenHash      string     // refresh_tokens.token_hash
	UserID         string     // refresh_tokens.user_id
	ExpiresAt      time.Time  // refresh_tokens.expires_at
	RevokedAt      *time.Time // refresh_tokens.revoked_at (nullable)
	ReplacedByHash *string    // refresh_tokens.replaced_by_hash (nullable)
	CreatedAt      time.Time  // refresh_tokens.created_at
}

// Active reports whether the token can still be exchanged at instant now.
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Rotated reports whether the token was revoked by a rotation (as opposed to
// a logout), i.e. it has a successor in its chain.
func (t RefreshToken) Rotated() bool {
	return t.RevokedAt != nil && t.ReplacedByHash != nil
}
