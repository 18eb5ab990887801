package pastes

import (
	"context"
	"errors"
)

// Fork denial reasons.
const (
	ForkDeniedNotFound = "not_found"
	ForkDeniedAccess   = "access_denied"
	ForkDeniedPassword = "password_protected"
)

// ForkDraft is a detached pre-filled create request derived from an existing
// paste. Nothing is persisted until the caller submits it through Create.
type ForkDraft struct {
	SourceID              string
	SourceVersion         int64
	Content               string
	Title                 *string
	Language              *string
	Visibility            Visibility
	BurnAfterReading      bool
	VersioningEnabled     bool
	VersionHistoryVisible bool
	InvitedUserIDs        []string
}

// ForkResult carries either a draft or a denial reason.
type ForkResult struct {
	Draft  *ForkDraft
	Denied string
}

// GetForkData derives a fork draft from the source paste. Access is
// re-checked against the caller, password-protected sources may only be
// forked by their owner or a read-any caller, and a requested historical
// version is substituted when the caller may view history (requests beyond
// the current version clamp down to it). The custom slug and password never
// carry over; invite lists carry over minus the forking caller, who becomes
// the owner of the draft.
func (s *Service) GetForkData(ctx context.Context, pasteID string, caller *Caller, perms Permissions, requestedVersion *int64) (ForkResult, error) {
	paste, err := s.Get(ctx, pasteID)
	if err != nil {
		if errors.Is(err, ErrPasteNotFound) {
			return ForkResult{Denied: ForkDeniedNotFound}, nil
		}
		return ForkResult{}, newServiceError(opFork, "source_load_failed", err)
	}

	if !s.CanRead(ctx, paste, caller, perms) {
		return ForkResult{Denied: ForkDeniedAccess}, nil
	}

	protected := paste.PasswordHash != nil && *paste.PasswordHash != ""
	if protected {
		privileged := caller != nil && (paste.IsOwnedBy(caller.UserID) || perms.ReadAny)
		if !privileged {
			return ForkResult{Denied: ForkDeniedPassword}, nil
		}
	}

	content := paste.Content
	sourceVersion := paste.CurrentVersion
	if requestedVersion != nil && CanViewHistory(paste, caller, perms) {
		version := *requestedVersion
		if version > paste.CurrentVersion {
			version = paste.CurrentVersion
		}
		if version >= 1 && version != paste.CurrentVersion {
			snapshot, err := s.GetVersionContent(ctx, paste.ID, version)
			if err != nil {
				return ForkResult{}, newServiceError(opFork, "version_load_failed", err)
			}
			if snapshot != nil {
				content = *snapshot
				sourceVersion = version
			}
		}
	}

	draft := &ForkDraft{
		SourceID:              paste.ID,
		SourceVersion:         sourceVersion,
		Content:               content,
		Title:                 paste.Title,
		Language:              paste.Language,
		Visibility:            paste.Visibility,
		BurnAfterReading:      paste.BurnAfterReading,
		VersioningEnabled:     paste.VersioningEnabled,
		VersionHistoryVisible: paste.VersionHistoryVisible,
	}

	if paste.Visibility == VisibilityInviteOnly {
		invites, err := s.ListInvites(ctx, paste.ID)
		if err != nil {
			return ForkResult{}, newServiceError(opFork, "invite_load_failed", err)
		}
		carried := make([]string, 0, len(invites))
		for _, invite := range invites {
			if caller != nil && invite.UserID == caller.UserID {
				continue
			}
			carried = append(carried, invite.UserID)
		}
		draft.InvitedUserIDs = carried
	}

	return ForkResult{Draft: draft}, nil
}
