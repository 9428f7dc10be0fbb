package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role gates access to API routes.
type Role string

const (
	RoleTrader     Role = "trader"
	RoleArbitrator Role = "arbitrator"
	RoleAdmin      Role = "admin"
)

// ValidRole reports whether a role string is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleTrader, RoleArbitrator, RoleAdmin:
		return true
	}
	return false
}

// User is an authenticated account. WalletAddress links the account to
// its on-platform trading identity.
type User struct {
	ID            uuid.UUID
	Email         string
	FullName      string
	PasswordHash  string
	WalletAddress string
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Claims is the JWT payload.
type Claims struct {
	UserID        string `json:"uid"`
	WalletAddress string `json:"wallet"`
	Role          Role   `json:"role"`
	jwt.RegisteredClaims
}
