package domain

import (
	"strings"
	"time"
)

// UserRole enumerates help-desk roles.
type UserRole string

const (
	UserRoleEmployee    UserRole = "Employee"
	UserRoleTechSupport UserRole = "Tech Support"
	UserRoleAdmin       UserRole = "Admin"
)

// IsSupport reports whether the role may triage tickets.
func (r UserRole) IsSupport() bool {
	return r == UserRoleTechSupport || r == UserRoleAdmin
}

// CanReopen reports whether the role may move a terminal ticket back to Open.
func (r UserRole) CanReopen() bool {
	return r == UserRoleAdmin
}

func (r UserRole) Valid() bool {
	return r == UserRoleEmployee || r == UserRoleTechSupport || r == UserRoleAdmin
}

// UnassignedLabel is shown when a ticket has no resolvable assignee.
const UnassignedLabel = "Unassigned"

// User is a directory entry for anyone who files, handles or comments on tickets.
type User struct {
	ID         int64
	EmployeeID string
	FirstName  string
	LastName   string
	Email      string
	Role       UserRole
	Department string
	Branch     string
	Active     bool
	CreatedAt  time.Time
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Principal is the authenticated caller, passed explicitly to every command.
type Principal struct {
	UserID int64
	Name   string
	Role   UserRole
}

// SystemPrincipal is used by background jobs and the CLI.
var SystemPrincipal = Principal{UserID: 0, Name: "system", Role: UserRoleAdmin}
