package domain

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string // argon2id encoded; empty for accounts created via OAuth only
	Role         Role
	Active       bool // soft-disable flag; accounts are never hard-deleted
	Verified     bool // email confirmed
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary is the external projection of a user. It never carries credential
// material.
type Summary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
	Verified bool   `json:"verified"`
}

func (u User) Summary() Summary {
	return Summary{
		ID:       u.ID,
		Email:    u.Email,
		Role:     string(u.Role),
		Active:   u.Active,
		Verified: u.Verified,
	}
}
