package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "memberd/pkg/domain-errors"
)

func legacyDigest(secret, password string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHashAndVerify(t *testing.T) {
	h := NewHasher("")

	digest, err := h.Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, h.Verify("correct horse battery", digest))
	assert.False(t, h.Verify("wrong password", digest))
	assert.False(t, h.NeedsRehash(digest))
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	h := NewHasher("")

	_, err := h.Hash("")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestVerifyEmptyDigest(t *testing.T) {
	h := NewHasher("secret")
	assert.False(t, h.Verify("anything", ""))
}

func TestLegacyDigests(t *testing.T) {
	const secret = "legacy-secret"
	h := NewHasher(secret)
	digest := legacyDigest(secret, "old password")

	t.Run("verifies and flags for rehash", func(t *testing.T) {
		assert.True(t, h.Verify("old password", digest))
		assert.False(t, h.Verify("wrong password", digest))
		assert.True(t, h.NeedsRehash(digest))
	})

	t.Run("ignored without a legacy secret", func(t *testing.T) {
		plain := NewHasher("")
		assert.False(t, plain.Verify("old password", digest))
		assert.False(t, plain.NeedsRehash(digest))
	})

	t.Run("bcrypt digests never match the legacy path", func(t *testing.T) {
		bcryptDigest, err := h.Hash("old password")
		require.NoError(t, err)
		assert.True(t, h.Verify("old password", bcryptDigest))
		assert.False(t, h.NeedsRehash(bcryptDigest))
	})
}
