package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Roles accepted by the chat endpoints.
const (
	RoleUser  = "user"
	RoleHost  = "host"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleHost, RoleStaff, RoleAdmin:
		return true
	default:
		return false
	}
}
