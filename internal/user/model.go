package user

import "time"

// User is the buyer snapshot gateways need; accounts themselves live in the
// auth service.
type User struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	DateOfBirth     string     `json:"dob,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
