package domain

import "time"

// VerificationKind types a single-use token to the action it proves
// eligibility for. Consuming with the wrong kind fails.
type VerificationKind string

const (
	VerificationEmail         VerificationKind = "email_verify"
	VerificationPasswordReset VerificationKind = "password_reset"
)

func (k VerificationKind) Valid() bool {
	switch k {
	case VerificationEmail, VerificationPasswordReset:
		return true
	}
	return false
}

// VerificationToken is a single-use, typed, time-bound proof token.
type VerificationToken struct {
	ID        string
	UserID    string
	TokenHash string
	Kind      VerificationKind
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
