package core

import "time"

// User owns tasks. Records are created at registration and never
// mutated by the task lifecycle.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`

	// PasswordHash is persisted by the stores but is never exposed on
	// the wire; API responses go through DTOs that omit it.
	PasswordHash string `json:"password_hash,omitempty"`

	CreatedAt *time.Time `json:"created_at"`
}

func (u *User) CloneUser() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.CreatedAt = copyTime(u.CreatedAt)
	return &c
}
