package pastes

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VersionMeta describes one stored snapshot without its content body.
type VersionMeta struct {
	Version   int64
	CreatedAt time.Time
	Length    int
}

// ListVersionMeta returns snapshot metadata for the paste ordered by version
// number descending (newest first).
func (s *Service) ListVersionMeta(ctx context.Context, pasteID string) ([]VersionMeta, error) {
	var rows []PasteVersion
	err := s.db.WithContext(ctx).
		Where("paste_id = ?", pasteID).
		Order("version DESC").
		Find(&rows).Error
	if err != nil {
		s.logError(opVersions, "version_list_failed", err, zap.String("paste_id", pasteID))
		return nil, newServiceError(opVersions, "version_list_failed", err)
	}

	meta := make([]VersionMeta, 0, len(rows))
	for _, row := range rows {
		meta = append(meta, VersionMeta{
			Version:   row.Version,
			CreatedAt: row.CreatedAt,
			Length:    len(row.Content),
		})
	}
	return meta, nil
}

// GetVersionContent returns the stored snapshot content for the given version
// number, or nil when no such snapshot exists.
func (s *Service) GetVersionContent(ctx context.Context, pasteID string, version int64) (*string, error) {
	var row PasteVersion
	err := s.db.WithContext(ctx).
		Where("paste_id = ? AND version = ?", pasteID, version).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opVersions, "version_select_failed", err,
			zap.String("paste_id", pasteID),
			zap.Int64("version", version))
		return nil, newServiceError(opVersions, "version_select_failed", err)
	}
	content := row.Content
	return &content, nil
}

// CanViewHistory decides whether the caller may browse the paste's version
// history. History is never visible while versioning is disabled; owners and
// read-any callers always see it; everyone else follows the paste's
// version_history_visible flag.
func CanViewHistory(paste *Paste, caller *Caller, perms Permissions) bool {
	if paste == nil || !paste.VersioningEnabled {
		return false
	}
	if caller != nil && (paste.IsOwnedBy(caller.UserID) || perms.ReadAny) {
		return true
	}
	return paste.VersionHistoryVisible
}
