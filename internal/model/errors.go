package model

import "errors"

// Error kinds. Every error surfaced by the holiday packages wraps exactly
// one of these, so callers can pick a corrective action with errors.Is.
var (
	// ErrNetwork covers connect failures, timeouts and non-2xx responses.
	ErrNetwork = errors.New("network error")
	// ErrParse covers unsupported date formats, undecodable bytes and
	// malformed CSV or cache documents.
	ErrParse = errors.New("parse error")
	// ErrCacheIO covers a missing, unreadable or unwritable cache file.
	ErrCacheIO = errors.New("cache I/O error")
	// ErrConfig covers invalid strategies and option values.
	ErrConfig = errors.New("config error")
	// ErrNotInitialized is returned by queries issued before Initialize.
	ErrNotInitialized = errors.New("holiday service not initialized")
	// ErrInvalidRange is returned when a range starts after it ends.
	ErrInvalidRange = errors.New("invalid date range")
)
