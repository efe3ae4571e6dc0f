package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// TemporaryOriginalKey generates profiles/{profileId}/photos/tmp_{12 hex}/orig.
func TemporaryOriginalKey(profileID int64) (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/tmp_%s/orig", profilePhotosPrefix(profileID), hex.EncodeToString(b[:])), nil
}

// DerivedKey is deterministic so that a redelivered job overwrites its own output.
func DerivedKey(profileID, photoID int64, variant VariantName) string {
	return fmt.Sprintf("%s/%d/%s.jpg", profilePhotosPrefix(profileID), photoID, variant)
}

// BelongsToProfile reports whether an original storage key lives under the profile prefix.
func BelongsToProfile(storageKey string, profileID int64) bool {
	prefix := profilePhotosPrefix(profileID) + "/"
	return strings.HasPrefix(storageKey, prefix) &&
		len(storageKey) > len(prefix) &&
		!strings.Contains(storageKey, "..")
}

func profilePhotosPrefix(profileID int64) string {
	return fmt.Sprintf("profiles/%d/photos", profileID)
}
