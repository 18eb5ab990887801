package pastes

import (
	"context"

	"go.uber.org/zap"
)

// allowRead is the pure visibility decision. The invite membership for the
// INVITE_ONLY case is resolved by the caller and passed in so the decision
// itself stays side-effect free.
func allowRead(paste *Paste, caller *Caller, perms Permissions, hasInvite bool) bool {
	switch paste.Visibility {
	case VisibilityPublic:
		return perms.PublicRead
	case VisibilityAuthenticated:
		return caller != nil && perms.AuthenticatedRead
	case VisibilityInviteOnly:
		if caller == nil {
			return false
		}
		if paste.IsOwnedBy(caller.UserID) || perms.ReadAny {
			return true
		}
		return hasInvite
	case VisibilityPrivate:
		if caller == nil {
			return false
		}
		return paste.IsOwnedBy(caller.UserID) || perms.ReadAny
	default:
		return false
	}
}

// CanRead reports whether the caller may read the paste under its visibility
// level. Only the INVITE_ONLY path touches the database; every other level is
// decided from the arguments alone. Lookup failures deny access.
func (s *Service) CanRead(ctx context.Context, paste *Paste, caller *Caller, perms Permissions) bool {
	if paste == nil {
		return false
	}

	hasInvite := false
	if paste.Visibility == VisibilityInviteOnly && caller != nil &&
		!paste.IsOwnedBy(caller.UserID) && !perms.ReadAny {
		invited, err := s.HasInvite(ctx, paste.ID, caller.UserID)
		if err != nil {
			s.loggerOrDefault().Warn("invite lookup failed, denying read",
				zap.String("paste_id", paste.ID),
				zap.String("user_id", caller.UserID),
				zap.Error(err))
			return false
		}
		hasInvite = invited
	}

	return allowRead(paste, caller, perms, hasInvite)
}
