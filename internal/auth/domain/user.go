package domain

import (
	"strings"
	"time"
)

// User is an account that can authenticate. Users are never deleted, only
// deactivated.
type User struct {
	ID           string
	Email        string // normalized, see NormalizeEmail
	PasswordHash string // argon2id PHC string, or bcrypt for imported accounts
	IsActive     bool
	IsStaff      bool
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
