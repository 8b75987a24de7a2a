package models

import "time"

const MaxUsernameLength = 50

type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
