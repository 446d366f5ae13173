package model

import "time"

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // user / admin
	CreatedAt    time.Time `json:"created_at"`
}

// UserProject tracks which bucket a project occupies for a member.
type UserProject struct {
	UserName    string    `json:"user_name"`
	ProjectName string    `json:"project_name"`
	Bucket      string    `json:"bucket"` // ongoing / completed
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	BucketOngoing   = "ongoing"
	BucketCompleted = "completed"
)
