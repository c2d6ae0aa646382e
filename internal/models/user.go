package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleStaff:
		return RoleStaff, true
	case RoleManager:
		return RoleManager, true
	default:
		return "", false
	}
}

type User struct {
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

func (a Actor) IsManager() bool {
	return a.Role == RoleManager
}

func (u User) Actor() Actor {
	return Actor{UserID: u.UserID, Name: u.Name, Role: u.Role}
}
