package models

import "time"

// User is a registered curator account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
