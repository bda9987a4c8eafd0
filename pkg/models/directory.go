package models

import "time"

// Known role names. A user id that equals one of these is resolved to the role's members.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleSales      = "sales"
	RoleAccounts   = "accounts"
	RoleTechnician = "technician"
)

// DefaultRoles returns the role names recognised when none are configured.
func DefaultRoles() []string {
	return []string{RoleAdmin, RoleManager, RoleSales, RoleAccounts, RoleTechnician}
}

// User is a member of the host application that can receive notifications and assignments.
type User struct {
	ID    string `json:"id"    validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Role  string `json:"role"  validate:"required"`
}

// ActivityLog is one audit entry written by a create_activity_log action.
type ActivityLog struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Details    string    `json:"details"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification is handed to the notification collaborator.
type Notification struct {
	UserID     string `json:"user_id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// Email is handed to the email collaborator.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}
