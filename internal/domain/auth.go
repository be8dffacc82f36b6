package domain

import "time"

// Session is the result of a successful registration or login.
type Session struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}
