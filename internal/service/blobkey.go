package service

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// BlobKeySuffix is the fixed suffix carried by every generated blob key.
const BlobKeySuffix = ".blob"

// Blob keys are a restricted character set, bounded length, fixed suffix.
var blobKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}\.blob$`)

// NewBlobKey generates a fresh globally-unique blob key.
func NewBlobKey() string {
	return uuid.NewString() + BlobKeySuffix
}

// ValidBlobKey reports whether key is safe to use as a storage key.
// Rejects traversal sequences and separators outright; callers must run this
// before any store access.
func ValidBlobKey(key string) bool {
	if key == "" || !blobKeyPattern.MatchString(key) {
		return false
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return false
	}
	return true
}
