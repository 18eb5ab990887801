package pastes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Visibility enumerates who may read a paste.
type Visibility string

const (
	// VisibilityPublic grants read access to everyone, including anonymous callers.
	VisibilityPublic Visibility = "public"
	// VisibilityAuthenticated grants read access to any signed-in caller.
	VisibilityAuthenticated Visibility = "authenticated"
	// VisibilityInviteOnly grants read access to the owner and explicitly invited users.
	VisibilityInviteOnly Visibility = "invite_only"
	// VisibilityPrivate grants read access to the owner only.
	VisibilityPrivate Visibility = "private"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidPasteID indicates that a paste identifier is empty or exceeds storage bounds.
	ErrInvalidPasteID = errors.New("pastes: invalid paste id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("pastes: invalid user id")
	// ErrInvalidVisibility indicates an unknown visibility value.
	ErrInvalidVisibility = errors.New("pastes: invalid visibility")
)

// ParseVisibility validates raw input and returns a Visibility.
func ParseVisibility(rawInput string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(rawInput))) {
	case VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityAuthenticated:
		return VisibilityAuthenticated, nil
	case VisibilityInviteOnly:
		return VisibilityInviteOnly, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, rawInput)
	}
}

// PasteID represents a validated paste identifier (the short id or a custom slug).
type PasteID string

// NewPasteID validates raw input and returns a PasteID.
func NewPasteID(rawInput string) (PasteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPasteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPasteID, maxIdentifierLength)
	}
	return PasteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PasteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Paste models the persisted paste row together with its access-control and
// version bookkeeping columns.
type Paste struct {
	ID                    string     `gorm:"column:id;primaryKey;size:190;not null"`
	CustomSlug            *string    `gorm:"column:custom_slug;size:190;uniqueIndex"`
	Title                 *string    `gorm:"column:title;size:320"`
	Language              *string    `gorm:"column:language;size:64"`
	Content               string     `gorm:"column:content;type:text;not null"`
	CurrentVersion        int64      `gorm:"column:current_version;not null;default:1"`
	Visibility            Visibility `gorm:"column:visibility;size:32;not null;default:public;index"`
	PasswordHash          *string    `gorm:"column:password_hash;size:512"`
	OwnerID               *string    `gorm:"column:owner_id;size:190;index"`
	BurnAfterReading      bool       `gorm:"column:burn_after_reading;not null;default:false"`
	ExpiresAt             *time.Time `gorm:"column:expires_at;index"`
	VersioningEnabled     bool       `gorm:"column:versioning_enabled;not null;default:false"`
	VersionHistoryVisible bool       `gorm:"column:version_history_visible;not null;default:false"`
	ViewCount             int64      `gorm:"column:view_count;not null;default:0"`
	UniqueViewCount       int64      `gorm:"column:unique_view_count;not null;default:0"`
	LastViewedAt          *time.Time `gorm:"column:last_viewed_at"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Paste) TableName() string {
	return "pastes"
}

// IsExpired reports whether the paste's expiry timestamp has passed.
func (p *Paste) IsExpired(now time.Time) bool {
	if p.ExpiresAt == nil {
		return false
	}
	return now.After(*p.ExpiresAt)
}

// IsOwnedBy reports whether the supplied caller identifier owns this paste.
// Guest pastes have no owner and are owned by nobody.
func (p *Paste) IsOwnedBy(userID string) bool {
	return p.OwnerID != nil && userID != "" && *p.OwnerID == userID
}

// PasteVersion captures an immutable content snapshot taken before an edit.
type PasteVersion struct {
	PasteID    string    `gorm:"column:paste_id;primaryKey;size:190;not null;index:idx_paste_versions_paste"`
	Version    int64     `gorm:"column:version;primaryKey;not null"`
	Content    string    `gorm:"column:content;type:text;not null"`
	CreatedBy  *string   `gorm:"column:created_by;size:190"`
	ChangeNote *string   `gorm:"column:change_note;size:512"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (PasteVersion) TableName() string {
	return "paste_versions"
}

// PasteInvite grants a specific user read access to an invite-only paste.
type PasteInvite struct {
	PasteID   string    `gorm:"column:paste_id;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	InvitedBy string    `gorm:"column:invited_by;size:190;not null"`
	InvitedAt time.Time `gorm:"column:invited_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PasteInvite) TableName() string {
	return "paste_invites"
}

// PasteView is an append-only analytics record of a single read.
type PasteView struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PasteID    string    `gorm:"column:paste_id;size:190;not null;index:idx_paste_views_paste"`
	ViewerHash string    `gorm:"column:viewer_hash;size:128;not null"`
	ViewedAt   time.Time `gorm:"column:viewed_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PasteView) TableName() string {
	return "paste_views"
}

// Caller identifies the user performing an operation. A nil Caller is an
// anonymous request.
type Caller struct {
	UserID string
	Admin  bool
}

// Permissions is the resolved permission set for a caller as supplied by the
// authorization subsystem.
type Permissions struct {
	PublicRead        bool
	AuthenticatedRead bool
	ReadAny           bool
}

// AnonymousPermissions is the permission set applied to callers with no session.
func AnonymousPermissions() Permissions {
	return Permissions{PublicRead: true}
}

// PermissionsForRole resolves the permission set for an authenticated user.
// Banned users keep only public read.
func PermissionsForRole(role string, banned bool) Permissions {
	if banned {
		return Permissions{PublicRead: true}
	}
	perms := Permissions{PublicRead: true, AuthenticatedRead: true}
	if strings.EqualFold(strings.TrimSpace(role), "admin") {
		perms.ReadAny = true
	}
	return perms
}
