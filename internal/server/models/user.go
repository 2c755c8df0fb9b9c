// Package models contains the server-side persistence models.
package models

import "time"

// User is a row of the users table. The session column is not part of the
// model; it is read and written only through the sessions repository.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	AvatarURL    *string
	CreatedAt    time.Time
}
