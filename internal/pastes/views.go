package pastes

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordView appends an analytics row and bumps the paste's view counters.
// The unique count advances only the first time a viewer hash is seen for
// the paste. Counters only ever grow.
func (s *Service) RecordView(ctx context.Context, pasteID, viewerHash string) error {
	now := s.clock().UTC()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen int64
		if err := tx.Model(&PasteView{}).
			Where("paste_id = ? AND viewer_hash = ?", pasteID, viewerHash).
			Count(&seen).Error; err != nil {
			return err
		}

		view := PasteView{
			PasteID:    pasteID,
			ViewerHash: viewerHash,
			ViewedAt:   now,
		}
		if err := tx.Create(&view).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"view_count":     gorm.Expr("view_count + 1"),
			"last_viewed_at": now,
		}
		if seen == 0 {
			updates["unique_view_count"] = gorm.Expr("unique_view_count + 1")
		}
		return tx.Model(&Paste{}).Where("id = ?", pasteID).Updates(updates).Error
	})
	if txErr != nil {
		s.logError(opRecordView, "view_record_failed", txErr, zap.String("paste_id", pasteID))
		return newServiceError(opRecordView, "view_record_failed", txErr)
	}
	return nil
}

// BurnAfterRead deletes a burn-after-reading paste once a non-owner has read
// it. Owner reads never trigger the burn. Returns whether the paste was
// deleted.
func (s *Service) BurnAfterRead(ctx context.Context, paste *Paste, caller *Caller) (bool, error) {
	if paste == nil || !paste.BurnAfterReading {
		return false, nil
	}
	if caller != nil && paste.IsOwnedBy(caller.UserID) {
		return false, nil
	}
	deleted, err := s.Delete(ctx, paste.ID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("paste burned after read", zap.String("paste_id", paste.ID))
	}
	return deleted, nil
}
