// Package credential hashes and verifies account passwords.
//
// New digests use bcrypt with a per-password salt. Verification additionally
// accepts legacy digests produced by the previous scheme (hex-encoded
// HMAC-SHA256 keyed with a server-held secret) so accounts created before the
// migration keep working; those digests are upgraded on the next successful
// password change.
package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "memberd/pkg/domain-errors"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// legacyDigestLength is the hex length of an HMAC-SHA256 digest.
const legacyDigestLength = sha256.Size * 2

// Hasher hashes and verifies passwords.
type Hasher struct {
	legacySecret []byte
}

// NewHasher constructs a Hasher. legacySecret is the key of the retired
// HMAC scheme; pass empty when no legacy digests exist.
func NewHasher(legacySecret string) *Hasher {
	return &Hasher{legacySecret: []byte(legacySecret)}
}

// Hash returns a digest for password suitable for storage.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeValidation, "password cannot be empty")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "password is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash password")
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. Comparison of legacy
// digests is constant-time to resist timing attacks.
func (h *Hasher) Verify(password, digest string) bool {
	if digest == "" {
		return false
	}
	if h.isLegacy(digest) {
		return hmac.Equal([]byte(h.legacyHash(password)), []byte(digest))
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// NeedsRehash reports whether digest was produced by the legacy scheme and
// should be replaced on the next opportunity.
func (h *Hasher) NeedsRehash(digest string) bool {
	return h.isLegacy(digest)
}

func (h *Hasher) isLegacy(digest string) bool {
	return len(h.legacySecret) > 0 &&
		len(digest) == legacyDigestLength &&
		!strings.HasPrefix(digest, "$2")
}

func (h *Hasher) legacyHash(password string) string {
	mac := hmac.New(sha256.New, h.legacySecret)
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}
