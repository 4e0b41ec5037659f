package storage

import "errors"

var (
	// ErrKeyNotFound signals a missing key in a backend.
	ErrKeyNotFound = errors.New("storage: key not found")

	// ErrQuotaExceeded signals a write rejected for lack of space.
	// SafeStorage reacts with one eviction sweep and one retry.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)
