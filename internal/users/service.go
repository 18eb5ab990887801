package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillbin/quillbin/internal/auth"
)

var (
	// ErrInvalidUsername indicates an empty or oversized username.
	ErrInvalidUsername = errors.New("users: invalid username")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("users: username already taken")
	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserBanned indicates the account is banned from signing in.
	ErrUserBanned = errors.New("users: account banned")
	// ErrUserNotFound indicates no account exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")
)

const maxUsernameLength = 64

// ServiceConfig describes the dependencies for the accounts service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages local accounts: registration, credential checks, and
// lookups used by the paste core.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the accounts service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Register creates a new account with an argon2id password hash. The first
// registered account is granted the admin role.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	name := normalize(username)
	if name == "" || len(name) > maxUsernameLength {
		return nil, ErrInvalidUsername
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           id.String(),
		Username:     name,
		PasswordHash: hash,
		Role:         RoleUser,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}

		var total int64
		if err := tx.Model(&User{}).Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			user.Role = RoleAdmin
		}

		return tx.Create(user).Error
	})
	if txErr != nil {
		return nil, txErr
	}
	return user, nil
}

// Authenticate verifies the supplied credentials and returns the account.
// Banned accounts fail with ErrUserBanned after a successful password check
// so bans do not leak through timing.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("username = ?", normalize(username)).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn a verification anyway so unknown usernames cost the same.
		_, _ = auth.VerifyPassword(auth.DummyPasswordHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	if user.Banned {
		return nil, ErrUserBanned
	}
	return &user, nil
}

// GetByID loads an account by its identifier.
func (s *Service) GetByID(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername loads an account by its username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", normalize(username)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Exists reports whether an account with the identifier exists.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UsernamesFor resolves usernames for the supplied identifiers. Unknown ids
// are simply absent from the result.
func (s *Service) UsernamesFor(ctx context.Context, userIDs []string) (map[string]string, error) {
	resolved := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return resolved, nil
	}
	var rows []User
	err := s.db.WithContext(ctx).
		Select("id", "username").
		Where("id IN ?", userIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		resolved[row.ID] = row.Username
	}
	return resolved, nil
}

// SetBanned flips the ban flag on an account.
func (s *Service) SetBanned(ctx context.Context, userID string, banned bool) error {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Update("banned", banned)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
