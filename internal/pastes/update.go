package pastes

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Optional wraps a partial-update field so "not supplied" and "explicitly
// set" are distinct states. The zero value is unset.
type Optional[T any] struct {
	set   bool
	value T
}

// Set returns an Optional holding the supplied value.
func Set[T any](value T) Optional[T] {
	return Optional[T]{set: true, value: value}
}

// IsSet reports whether the caller supplied this field.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// Value returns the supplied value; meaningful only when IsSet is true.
func (o Optional[T]) Value() T {
	return o.value
}

// UpdateRequest carries a partial update. Fields left unset keep their
// current values; a field explicitly set to its current value is also a
// no-change (both collapse to the same no-op, which callers depend on).
type UpdateRequest struct {
	PasteID  string
	EditorID *string

	Content               Optional[string]
	ChangeNote            *string
	CustomSlug            Optional[*string]
	Title                 Optional[*string]
	Language              Optional[*string]
	PasswordHash          Optional[*string]
	Visibility            Optional[Visibility]
	ExpiresAt             Optional[*time.Time]
	BurnAfterReading      Optional[bool]
	VersioningEnabled     Optional[bool]
	VersionHistoryVisible Optional[bool]

	AddInvitedUserIDs    []string
	RemoveInvitedUserIDs []string
}

// updatePlan is the computed effect of an UpdateRequest against the current
// row: the column diff, the version bookkeeping, and the invite transitions.
type updatePlan struct {
	changes         map[string]interface{}
	snapshot        *PasteVersion
	wipeVersions    bool
	effectiveVis    Visibility
	leavingInvite   bool
	slugToCheck     *string
	contentChanged  bool
	versioningAfter bool
	nextVersion     int64
	versionAdjusted bool
}

// buildUpdatePlan computes the field-level diff without touching the
// database. Timestamp fields compare by instant so representation
// differences never register as changes, and optional text fields normalize
// empty strings to null before comparing.
func buildUpdatePlan(current *Paste, req UpdateRequest) (updatePlan, error) {
	plan := updatePlan{
		changes:      map[string]interface{}{},
		effectiveVis: current.Visibility,
	}

	if req.Content.IsSet() && req.Content.Value() != current.Content {
		plan.changes["content"] = req.Content.Value()
		plan.contentChanged = true
	}

	if req.CustomSlug.IsSet() {
		supplied := normalizeOptionalText(req.CustomSlug.Value())
		if !equalOptionalText(supplied, current.CustomSlug) {
			plan.changes["custom_slug"] = supplied
			plan.slugToCheck = supplied
		}
	}
	if req.Title.IsSet() {
		supplied := normalizeOptionalText(req.Title.Value())
		if !equalOptionalText(supplied, current.Title) {
			plan.changes["title"] = supplied
		}
	}
	if req.Language.IsSet() {
		supplied := normalizeOptionalText(req.Language.Value())
		if !equalOptionalText(supplied, current.Language) {
			plan.changes["language"] = supplied
		}
	}
	if req.PasswordHash.IsSet() {
		supplied := normalizeOptionalText(req.PasswordHash.Value())
		if !equalOptionalText(supplied, current.PasswordHash) {
			plan.changes["password_hash"] = supplied
		}
	}

	if req.Visibility.IsSet() {
		visibility, err := ParseVisibility(string(req.Visibility.Value()))
		if err != nil {
			return updatePlan{}, err
		}
		plan.effectiveVis = visibility
		if visibility != current.Visibility {
			plan.changes["visibility"] = visibility
			if current.Visibility == VisibilityInviteOnly {
				plan.leavingInvite = true
			}
		}
	}

	if req.ExpiresAt.IsSet() && !equalOptionalTime(req.ExpiresAt.Value(), current.ExpiresAt) {
		plan.changes["expires_at"] = req.ExpiresAt.Value()
	}
	if req.BurnAfterReading.IsSet() && req.BurnAfterReading.Value() != current.BurnAfterReading {
		plan.changes["burn_after_reading"] = req.BurnAfterReading.Value()
	}

	plan.versioningAfter = current.VersioningEnabled
	if req.VersioningEnabled.IsSet() {
		plan.versioningAfter = req.VersioningEnabled.Value()
		if plan.versioningAfter != current.VersioningEnabled {
			plan.changes["versioning_enabled"] = plan.versioningAfter
		}
	}

	historyVisibleAfter := current.VersionHistoryVisible
	if req.VersionHistoryVisible.IsSet() {
		historyVisibleAfter = req.VersionHistoryVisible.Value()
	}
	// Visible history requires versioning.
	if !plan.versioningAfter {
		historyVisibleAfter = false
	}
	if historyVisibleAfter != current.VersionHistoryVisible {
		plan.changes["version_history_visible"] = historyVisibleAfter
	}

	if current.VersioningEnabled && !plan.versioningAfter {
		plan.wipeVersions = true
		plan.nextVersion = 1
		plan.versionAdjusted = true
	}

	if plan.contentChanged {
		if plan.versioningAfter {
			plan.snapshot = &PasteVersion{
				PasteID:    current.ID,
				Version:    current.CurrentVersion,
				Content:    current.Content,
				CreatedBy:  req.EditorID,
				ChangeNote: req.ChangeNote,
			}
			plan.nextVersion = current.CurrentVersion + 1
		} else {
			plan.nextVersion = 1
		}
		plan.versionAdjusted = true
	}

	if plan.versionAdjusted && plan.nextVersion != current.CurrentVersion {
		plan.changes["current_version"] = plan.nextVersion
	}

	return plan, nil
}

// Update applies a partial update inside one transaction, following the
// fixed order: slug check, invite removals, effective-visibility invite
// bookkeeping, version bookkeeping, then a single row write. An update whose
// plan contains no changes and no invite movement performs zero writes and
// returns the current row.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Paste, error) {
	var updated *Paste
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.load(ctx, tx, req.PasteID, true)
		if err != nil {
			return err
		}

		plan, err := buildUpdatePlan(current, req)
		if err != nil {
			return newServiceError(opUpdate, "invalid_visibility", err)
		}

		if plan.slugToCheck != nil {
			taken, err := slugTaken(tx, *plan.slugToCheck, current.ID)
			if err != nil {
				s.logError(opUpdate, "slug_check_failed", err, zap.String("paste_id", current.ID))
				return newServiceError(opUpdate, "slug_check_failed", err)
			}
			if taken {
				return newServiceError(opUpdate, "slug_taken", ErrSlugTaken)
			}
		}

		inviteChanged := false

		if len(req.RemoveInvitedUserIDs) > 0 {
			result := tx.Where("paste_id = ? AND user_id IN ?", current.ID, req.RemoveInvitedUserIDs).
				Delete(&PasteInvite{})
			if result.Error != nil {
				s.logError(opUpdate, "invite_delete_failed", result.Error, zap.String("paste_id", current.ID))
				return newServiceError(opUpdate, "invite_delete_failed", result.Error)
			}
			if result.RowsAffected > 0 {
				inviteChanged = true
			}
		}

		if plan.effectiveVis == VisibilityInviteOnly {
			if len(req.AddInvitedUserIDs) > 0 {
				inviterID := ""
				if req.EditorID != nil {
					inviterID = *req.EditorID
				} else if current.OwnerID != nil {
					inviterID = *current.OwnerID
				}
				var before int64
				if err := tx.Model(&PasteInvite{}).Where("paste_id = ?", current.ID).Count(&before).Error; err != nil {
					return newServiceError(opUpdate, "invite_count_failed", err)
				}
				if err := addInviteRows(tx, current.ID, req.AddInvitedUserIDs, inviterID, s.clock().UTC()); err != nil {
					s.logError(opUpdate, "invite_insert_failed", err, zap.String("paste_id", current.ID))
					return newServiceError(opUpdate, "invite_insert_failed", err)
				}
				var after int64
				if err := tx.Model(&PasteInvite{}).Where("paste_id = ?", current.ID).Count(&after).Error; err != nil {
					return newServiceError(opUpdate, "invite_count_failed", err)
				}
				if after != before {
					inviteChanged = true
				}
			}
		} else if plan.leavingInvite {
			result := tx.Where("paste_id = ?", current.ID).Delete(&PasteInvite{})
			if result.Error != nil {
				s.logError(opUpdate, "invite_delete_failed", result.Error, zap.String("paste_id", current.ID))
				return newServiceError(opUpdate, "invite_delete_failed", result.Error)
			}
			if result.RowsAffected > 0 {
				inviteChanged = true
			}
		}

		if len(plan.changes) == 0 && !inviteChanged {
			updated = current
			return nil
		}

		if plan.wipeVersions {
			if err := tx.Where("paste_id = ?", current.ID).Delete(&PasteVersion{}).Error; err != nil {
				s.logError(opUpdate, "version_wipe_failed", err, zap.String("paste_id", current.ID))
				return newServiceError(opUpdate, "version_wipe_failed", err)
			}
		}

		if plan.snapshot != nil {
			plan.snapshot.CreatedAt = s.clock().UTC()
			if err := tx.Create(plan.snapshot).Error; err != nil {
				s.logError(opUpdate, "snapshot_insert_failed", err,
					zap.String("paste_id", current.ID),
					zap.Int64("version", plan.snapshot.Version))
				return newServiceError(opUpdate, "snapshot_insert_failed", err)
			}
		}

		if len(plan.changes) > 0 {
			if err := tx.Model(&Paste{}).Where("id = ?", current.ID).
				Updates(plan.changes).Error; err != nil {
				s.logError(opUpdate, "paste_update_failed", err, zap.String("paste_id", current.ID))
				return newServiceError(opUpdate, "paste_update_failed", err)
			}
		}

		var reloaded Paste
		if err := tx.Where("id = ?", current.ID).Take(&reloaded).Error; err != nil {
			return newServiceError(opUpdate, "paste_reload_failed", err)
		}
		updated = &reloaded
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return updated, nil
}

// equalOptionalText treats nil and empty as distinct only on the stored
// side; supplied values are normalized before reaching here.
func equalOptionalText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// equalOptionalTime compares by instant so equal times in different
// locations or precisions do not register as a change.
func equalOptionalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
