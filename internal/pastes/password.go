package pastes

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillbin/quillbin/internal/auth"
)

// dummyPasswordHash is verified whenever a paste has no stored hash so the
// timing of the unprotected case is indistinguishable from a failed
// verification.
const dummyPasswordHash = auth.DummyPasswordHash

// PasswordVerifier checks a plaintext password against an encoded hash.
type PasswordVerifier interface {
	Verify(encodedHash, password string) bool
}

// Argon2Verifier verifies argon2id hashes produced by the auth package.
type Argon2Verifier struct{}

// Verify implements PasswordVerifier.
func (Argon2Verifier) Verify(encodedHash, password string) bool {
	ok, err := auth.VerifyPassword(encodedHash, password)
	if err != nil {
		return false
	}
	return ok
}

// ValidatePassword checks the supplied password against the paste's stored
// hash. It fails closed: lookup errors and missing hashes both return false,
// and a full verification is performed in every branch so response latency
// does not reveal whether the paste is password protected.
func (s *Service) ValidatePassword(ctx context.Context, pasteID, supplied string) bool {
	var paste Paste
	err := s.db.WithContext(ctx).
		Select("id", "password_hash").
		Where("id = ? OR custom_slug = ?", pasteID, pasteID).
		Take(&paste).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opGet, "password_lookup_failed", err, zap.String("paste_id", pasteID))
		}
		s.verifier.Verify(dummyPasswordHash, supplied)
		return false
	}

	if paste.PasswordHash == nil || *paste.PasswordHash == "" {
		s.verifier.Verify(dummyPasswordHash, supplied)
		return false
	}

	return s.verifier.Verify(*paste.PasswordHash, supplied)
}
