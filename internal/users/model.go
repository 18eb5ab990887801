package users

import (
	"strings"
	"time"
)

// Role values stored on a user row.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User captures a local account. Pastes reference users by id but never own
// them.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Username     string    `gorm:"column:username;size:64;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;size:512;not null"`
	Role         string    `gorm:"column:role;size:32;not null;default:user"`
	Banned       bool      `gorm:"column:banned;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing local accounts.
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
