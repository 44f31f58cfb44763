package model

import "time"

// UserRole enumerates account roles.
type UserRole string

const (
	RoleStudent   UserRole = "STUDENT"
	RoleProfessor UserRole = "PROFESSOR"
	RoleAdmin     UserRole = "ADMIN"
)

// User represents any account: students take exams, professors author QCMs
// and schedule sessions, admins manage everything.
type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         UserRole  `json:"role"`
	BranchID     *int      `json:"branch_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName returns the display name used in results and live tracking.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Branch is an organizational unit (filière) scoping which students see
// which exam sessions.
type Branch struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// LoginRequest is the payload for all logins.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}
