package directory

import "time"

// User represents an account known to the directory.
type User struct {
	ID          int64
	Username    string
	DisplayName string
	Email       string
	Deactivated bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Group represents a named set of users.
type Group struct {
	ID          int64
	Name        string
	Description string
}
