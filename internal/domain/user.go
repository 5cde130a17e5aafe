package domain

import "time"

// User is an account holder.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	EmailVerified     bool      `json:"emailVerified"`
	VerificationToken string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
}
