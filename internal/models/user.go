package models

import (
	"strings"
	"time"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleParent  = "parent"
	RoleAdmin   = "admin"
)

type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	Role       string    `json:"role"`
	SchoolID   string    `json:"school_id,omitempty"`
	GradeLevel int       `json:"grade_level,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName returns "FirstName L." format (first name + last initial).
func (u User) DisplayName() string {
	return FormatDisplayName(u.Name)
}

// FormatDisplayName converts "John Smith" to "John S.".
func FormatDisplayName(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) <= 1 {
		return strings.TrimSpace(fullName)
	}
	lastName := []rune(parts[len(parts)-1])
	return parts[0] + " " + string(lastName[0]) + "."
}

type RegisterRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required,max=100"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	Role       string `json:"role" validate:"omitempty,oneof=student teacher parent"`
	SchoolID   string `json:"school_id" validate:"max=64"`
	GradeLevel int    `json:"grade_level" validate:"gte=0,lte=12"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
