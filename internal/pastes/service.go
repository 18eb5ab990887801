package pastes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingContent    = errors.New("paste content is required")
	noOpLogger           = zap.NewNop()

	// ErrPasteNotFound indicates the referenced paste does not exist.
	ErrPasteNotFound = errors.New("pastes: paste not found")
	// ErrSlugTaken indicates the requested custom slug is already claimed by
	// another paste's id or slug.
	ErrSlugTaken = errors.New("pastes: custom slug already taken")
)

// ServiceError wraps a failure with a dotted operation code for logs and
// HTTP responses.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "pastes.service.new"
	opCreate     = "pastes.create"
	opGet        = "pastes.get"
	opUpdate     = "pastes.update"
	opDelete     = "pastes.delete"
	opTransfer   = "pastes.transfer"
	opFork       = "pastes.fork"
	opInvites    = "pastes.invites"
	opVersions   = "pastes.versions"
	opRecordView = "pastes.record_view"
	opSweep      = "pastes.sweep_expired"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// UserDirectory resolves user records owned by the accounts subsystem.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	UsernamesFor(ctx context.Context, userIDs []string) (map[string]string, error)
}

// ServiceConfig describes the dependencies of the paste service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Users      UserDirectory
	Verifier   PasswordVerifier
	Logger     *zap.Logger
}

// Service coordinates paste mutations, invites, version snapshots and access
// decisions. All multi-table mutations run inside a single transaction.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	users      UserDirectory
	verifier   PasswordVerifier
	logger     *zap.Logger
}

// NewService constructs the paste service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = Argon2Verifier{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		users:      cfg.Users,
		verifier:   verifier,
		logger:     logger,
	}, nil
}

// CreateRequest carries the inputs for a new paste.
type CreateRequest struct {
	Content               string
	OwnerID               *string
	Visibility            Visibility
	CustomSlug            *string
	Title                 *string
	Language              *string
	PasswordHash          *string
	ExpiresAt             *time.Time
	BurnAfterReading      bool
	VersioningEnabled     bool
	VersionHistoryVisible bool
	InvitedUserIDs        []string
}

// Create inserts a paste row and, for INVITE_ONLY pastes with an owner, its
// initial invite rows, all inside one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Paste, error) {
	if req.Content == "" {
		return nil, newServiceError(opCreate, "missing_content", errMissingContent)
	}
	visibility, err := ParseVisibility(string(req.Visibility))
	if err != nil {
		return nil, newServiceError(opCreate, "invalid_visibility", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return nil, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	paste := &Paste{
		ID:                id,
		CustomSlug:        normalizeOptionalText(req.CustomSlug),
		Title:             normalizeOptionalText(req.Title),
		Language:          normalizeOptionalText(req.Language),
		Content:           req.Content,
		CurrentVersion:    1,
		Visibility:        visibility,
		PasswordHash:      req.PasswordHash,
		OwnerID:           req.OwnerID,
		BurnAfterReading:  req.BurnAfterReading,
		ExpiresAt:         req.ExpiresAt,
		VersioningEnabled: req.VersioningEnabled,
		// Visible history is only meaningful while versioning is on.
		VersionHistoryVisible: req.VersioningEnabled && req.VersionHistoryVisible,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if paste.CustomSlug != nil {
			taken, err := slugTaken(tx, *paste.CustomSlug, paste.ID)
			if err != nil {
				s.logError(opCreate, "slug_check_failed", err, zap.String("slug", *paste.CustomSlug))
				return newServiceError(opCreate, "slug_check_failed", err)
			}
			if taken {
				return newServiceError(opCreate, "slug_taken", ErrSlugTaken)
			}
		}

		if err := tx.Create(paste).Error; err != nil {
			s.logError(opCreate, "paste_insert_failed", err, zap.String("paste_id", paste.ID))
			return newServiceError(opCreate, "paste_insert_failed", err)
		}

		// Guests cannot invite; invite rows require an owning inviter.
		if visibility == VisibilityInviteOnly && req.OwnerID != nil && len(req.InvitedUserIDs) > 0 {
			if err := addInviteRows(tx, paste.ID, req.InvitedUserIDs, *req.OwnerID, now); err != nil {
				s.logError(opCreate, "invite_insert_failed", err, zap.String("paste_id", paste.ID))
				return newServiceError(opCreate, "invite_insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.logger.Info("paste created",
		zap.String("paste_id", paste.ID),
		zap.String("visibility", string(paste.Visibility)))
	return paste, nil
}

// Get loads a paste by its short id or custom slug. Expired pastes are
// reported as not found.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*Paste, error) {
	paste, err := s.load(ctx, s.db, idOrSlug, false)
	if err != nil {
		return nil, err
	}
	if paste.IsExpired(s.clock().UTC()) {
		return nil, newServiceError(opGet, "not_found", ErrPasteNotFound)
	}
	return paste, nil
}

// Delete removes a paste together with its invite and version rows.
func (s *Service) Delete(ctx context.Context, pasteID string) (bool, error) {
	deleted := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", pasteID).Delete(&Paste{})
		if result.Error != nil {
			s.logError(opDelete, "paste_delete_failed", result.Error, zap.String("paste_id", pasteID))
			return newServiceError(opDelete, "paste_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		deleted = true
		// The schema cascades these in Postgres; deleting explicitly keeps the
		// sqlite-backed tests honest as well.
		if err := tx.Where("paste_id = ?", pasteID).Delete(&PasteInvite{}).Error; err != nil {
			return newServiceError(opDelete, "invite_delete_failed", err)
		}
		if err := tx.Where("paste_id = ?", pasteID).Delete(&PasteVersion{}).Error; err != nil {
			return newServiceError(opDelete, "version_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	if deleted {
		s.logger.Info("paste deleted", zap.String("paste_id", pasteID))
	}
	return deleted, nil
}

// TransferResult reports the outcome of an ownership transfer.
type TransferResult struct {
	OK      bool
	Message string
}

// TransferOwnership moves a paste to a new owner. For INVITE_ONLY pastes the
// new owner's invite becomes redundant and is removed, while the previous
// owner keeps access through a freshly granted invite.
func (s *Service) TransferOwnership(ctx context.Context, pasteID, newOwnerID, currentOwnerID string) (TransferResult, error) {
	if newOwnerID == currentOwnerID {
		return TransferResult{Message: "paste already belongs to that user"}, nil
	}

	result := TransferResult{}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var paste Paste
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", pasteID).
			Take(&paste).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Message = "paste not found"
			return nil
		}
		if err != nil {
			s.logError(opTransfer, "paste_select_failed", err, zap.String("paste_id", pasteID))
			return newServiceError(opTransfer, "paste_select_failed", err)
		}

		if !paste.IsOwnedBy(currentOwnerID) {
			result.Message = "paste is not owned by the requesting user"
			return nil
		}

		if s.users != nil {
			exists, err := s.users.Exists(ctx, newOwnerID)
			if err != nil {
				s.logError(opTransfer, "owner_lookup_failed", err, zap.String("user_id", newOwnerID))
				return newServiceError(opTransfer, "owner_lookup_failed", err)
			}
			if !exists {
				result.Message = "target user does not exist"
				return nil
			}
		}

		if err := tx.Model(&Paste{}).
			Where("id = ?", paste.ID).
			Update("owner_id", newOwnerID).Error; err != nil {
			s.logError(opTransfer, "owner_update_failed", err, zap.String("paste_id", paste.ID))
			return newServiceError(opTransfer, "owner_update_failed", err)
		}

		if paste.Visibility == VisibilityInviteOnly {
			if err := tx.Where("paste_id = ? AND user_id = ?", paste.ID, newOwnerID).
				Delete(&PasteInvite{}).Error; err != nil {
				return newServiceError(opTransfer, "invite_delete_failed", err)
			}
			if err := addInviteRows(tx, paste.ID, []string{currentOwnerID}, newOwnerID, s.clock().UTC()); err != nil {
				return newServiceError(opTransfer, "invite_insert_failed", err)
			}
		}

		result.OK = true
		result.Message = "ownership transferred"
		return nil
	})
	if txErr != nil {
		return TransferResult{}, txErr
	}
	if result.OK {
		s.logger.Info("paste ownership transferred",
			zap.String("paste_id", pasteID),
			zap.String("new_owner_id", newOwnerID))
	}
	return result, nil
}

// load fetches a paste by id or slug, optionally taking a row lock when
// called inside a mutating transaction.
func (s *Service) load(ctx context.Context, db *gorm.DB, idOrSlug string, forUpdate bool) (*Paste, error) {
	query := db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var paste Paste
	err := query.Where("id = ? OR custom_slug = ?", idOrSlug, idOrSlug).Take(&paste).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opGet, "not_found", ErrPasteNotFound)
	}
	if err != nil {
		s.logError(opGet, "paste_select_failed", err, zap.String("paste_id", idOrSlug))
		return nil, newServiceError(opGet, "paste_select_failed", err)
	}
	return &paste, nil
}

// slugTaken checks the slug against both the id and custom slug namespaces,
// excluding the paste being written.
func slugTaken(tx *gorm.DB, slug, selfID string) (bool, error) {
	var count int64
	err := tx.Model(&Paste{}).
		Where("(id = ? OR custom_slug = ?) AND id <> ?", slug, slug, selfID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func normalizeOptionalText(value *string) *string {
	if value == nil {
		return nil
	}
	if *value == "" {
		return nil
	}
	return value
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("paste service error", attrs...)
}
