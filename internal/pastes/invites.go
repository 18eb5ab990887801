package pastes

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InviteEntry is a single invite as exposed to callers, joined with the
// invited user's name.
type InviteEntry struct {
	UserID    string
	Username  string
	InvitedAt time.Time
}

// HasInvite reports whether an invite row exists for the paste/user pair.
func (s *Service) HasInvite(ctx context.Context, pasteID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&PasteInvite{}).
		Where("paste_id = ? AND user_id = ?", pasteID, userID).
		Count(&count).Error
	if err != nil {
		s.logError(opInvites, "invite_lookup_failed", err, zap.String("paste_id", pasteID))
		return false, newServiceError(opInvites, "invite_lookup_failed", err)
	}
	return count > 0, nil
}

// ListInvites returns the paste's invites ordered by invite time ascending.
func (s *Service) ListInvites(ctx context.Context, pasteID string) ([]InviteEntry, error) {
	var rows []PasteInvite
	err := s.db.WithContext(ctx).
		Where("paste_id = ?", pasteID).
		Order("invited_at ASC").
		Find(&rows).Error
	if err != nil {
		s.logError(opInvites, "invite_list_failed", err, zap.String("paste_id", pasteID))
		return nil, newServiceError(opInvites, "invite_list_failed", err)
	}

	usernames := map[string]string{}
	if s.users != nil && len(rows) > 0 {
		userIDs := make([]string, 0, len(rows))
		for _, row := range rows {
			userIDs = append(userIDs, row.UserID)
		}
		resolved, err := s.users.UsernamesFor(ctx, userIDs)
		if err != nil {
			s.logError(opInvites, "username_lookup_failed", err, zap.String("paste_id", pasteID))
			return nil, newServiceError(opInvites, "username_lookup_failed", err)
		}
		usernames = resolved
	}

	entries := make([]InviteEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, InviteEntry{
			UserID:    row.UserID,
			Username:  usernames[row.UserID],
			InvitedAt: row.InvitedAt,
		})
	}
	return entries, nil
}

// AddInvites grants the listed users access to the paste. Users that already
// hold an invite are skipped; adding an existing invite is a no-op, not an
// error.
func (s *Service) AddInvites(ctx context.Context, pasteID string, userIDs []string, inviterID string) error {
	if len(userIDs) == 0 {
		return nil
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return addInviteRows(tx, pasteID, userIDs, inviterID, s.clock().UTC())
	})
	if txErr != nil {
		s.logError(opInvites, "invite_insert_failed", txErr, zap.String("paste_id", pasteID))
		return newServiceError(opInvites, "invite_insert_failed", txErr)
	}
	return nil
}

// RemoveInvites revokes access for the listed users. Unknown users are ignored.
func (s *Service) RemoveInvites(ctx context.Context, pasteID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("paste_id = ? AND user_id IN ?", pasteID, userIDs).
		Delete(&PasteInvite{}).Error
	if err != nil {
		s.logError(opInvites, "invite_delete_failed", err, zap.String("paste_id", pasteID))
		return newServiceError(opInvites, "invite_delete_failed", err)
	}
	return nil
}

// RemoveAllInvites wipes every invite for the paste. Used when visibility
// transitions away from INVITE_ONLY.
func (s *Service) RemoveAllInvites(ctx context.Context, pasteID string) error {
	err := s.db.WithContext(ctx).
		Where("paste_id = ?", pasteID).
		Delete(&PasteInvite{}).Error
	if err != nil {
		s.logError(opInvites, "invite_delete_failed", err, zap.String("paste_id", pasteID))
		return newServiceError(opInvites, "invite_delete_failed", err)
	}
	return nil
}

// addInviteRows inserts invites for users not already invited, preserving the
// no-duplicate-key contract inside whatever transaction the caller holds.
func addInviteRows(tx *gorm.DB, pasteID string, userIDs []string, inviterID string, now time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}

	var existing []PasteInvite
	if err := tx.Where("paste_id = ? AND user_id IN ?", pasteID, userIDs).
		Find(&existing).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	present := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		present[row.UserID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if _, ok := present[userID]; ok {
			continue
		}
		invite := PasteInvite{
			PasteID:   pasteID,
			UserID:    userID,
			InvitedBy: inviterID,
			InvitedAt: now,
		}
		if err := tx.Create(&invite).Error; err != nil {
			return err
		}
	}
	return nil
}
