package pastes

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SweepExpired deletes every paste whose expiry has passed, cascading into
// its invite, version, and view rows. Returns the number of pastes removed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	now := s.clock().UTC()
	var removed int64
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []Paste
		if err := tx.Select("id").
			Where("expires_at IS NOT NULL AND expires_at < ?", now).
			Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, 0, len(expired))
		for _, paste := range expired {
			ids = append(ids, paste.ID)
		}

		if err := tx.Where("paste_id IN ?", ids).Delete(&PasteInvite{}).Error; err != nil {
			return err
		}
		if err := tx.Where("paste_id IN ?", ids).Delete(&PasteVersion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("paste_id IN ?", ids).Delete(&PasteView{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&Paste{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected
		return nil
	})
	if txErr != nil {
		s.logError(opSweep, "sweep_failed", txErr)
		return 0, newServiceError(opSweep, "sweep_failed", txErr)
	}
	if removed > 0 {
		s.logger.Info("expired pastes removed", zap.Int64("count", removed))
	}
	return removed, nil
}
