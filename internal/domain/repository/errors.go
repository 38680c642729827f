package repository

import "errors"

var (
	// ErrEntryNotFound is returned when a cache key has no entry.
	ErrEntryNotFound = errors.New("cache entry not found")

	// ErrCorruptSnapshot is returned when persisted cache content cannot be parsed.
	ErrCorruptSnapshot = errors.New("cache snapshot is corrupt")

	// ErrObjectNotFound is returned when an object does not exist in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrTalkNotFound is returned when the avatar provider does not know a talk ID.
	ErrTalkNotFound = errors.New("talk not found")

	// ErrProviderUnauthorized is returned when a provider rejects our credentials.
	ErrProviderUnauthorized = errors.New("provider rejected credentials")

	// ErrInsufficientCredits is returned when the avatar provider account is out of credits.
	ErrInsufficientCredits = errors.New("insufficient provider credits")

	// ErrProviderUnavailable is returned for transient provider failures (timeouts, 5xx, network).
	ErrProviderUnavailable = errors.New("provider unavailable")
)
