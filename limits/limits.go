// Package limits provides centralized size limits for the Jingle
// file-transfer core. This ensures consistent validation across the
// session, file and transport components.
package limits

import (
	"errors"
	"fmt"
)

const (
	// InlineHashThreshold is the file size in bytes below which a digest
	// is computed synchronously while the outbound content payload is
	// being filled. Files at or above this size must be hashed
	// asynchronously by the caller before the stanza is sent, keeping the
	// blocking window during stanza construction small.
	InlineHashThreshold = 10_000_000

	// SampleWindow is the number of progress samples retained for
	// throughput estimation. Older samples are evicted so the estimate
	// reacts to recent network conditions instead of session-lifetime
	// averages.
	SampleWindow = 6

	// MaxFileNameLength is the maximum file name length in bytes. The
	// value (255) matches typical filesystem limits.
	MaxFileNameLength = 255

	// MaxDescriptionLength caps the free-text description attached to a
	// file offer, preventing memory exhaustion from oversized metadata.
	MaxDescriptionLength = 4096
)

var (
	// ErrNameEmpty indicates an empty file name was provided.
	ErrNameEmpty = errors.New("empty file name")

	// ErrNameTooLong indicates a file name exceeds MaxFileNameLength.
	ErrNameTooLong = errors.New("file name too long")

	// ErrDescriptionTooLong indicates a description exceeds MaxDescriptionLength.
	ErrDescriptionTooLong = errors.New("description too long")
)

// ValidateFileName validates a file name against MaxFileNameLength.
// Returns an error with context including the actual and maximum lengths.
func ValidateFileName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrNameTooLong, len(name), MaxFileNameLength)
	}
	return nil
}

// ValidateDescription validates a file description against MaxDescriptionLength.
// Empty descriptions are allowed.
func ValidateDescription(desc string) error {
	if len(desc) > MaxDescriptionLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrDescriptionTooLong, len(desc), MaxDescriptionLength)
	}
	return nil
}

// HashInline reports whether a file of the given size should be digested
// synchronously during payload fill.
func HashInline(size uint64) bool {
	return size < InlineHashThreshold
}
