package model

import "time"

// DateKeyLayout is the canonical holiday key format (YYYY-MM-DD).
const DateKeyLayout = "2006-01-02"

// HolidayMap maps a canonical date key to the holiday's display name.
// It is rebuilt wholesale on every refresh and never mutated in place
// once handed to the lookup service.
type HolidayMap map[string]string

// Holiday is a single (date, name) pair as returned by range queries.
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// CacheMetadata describes where a snapshot came from and how fresh it is.
type CacheMetadata struct {
	// LastUpdated is the time of the last successful full download. A
	// freshness check that did not download never touches it.
	LastUpdated time.Time `json:"last_updated"`

	// ETag / LastModified are the validators returned with the download.
	// Empty means the server did not send one.
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`

	// LastETagCheck is set whenever an ETag probe round-trip completes,
	// whether or not it led to a refresh.
	LastETagCheck *time.Time `json:"last_etag_check,omitempty"`

	SourceURL          string `json:"source_url"`
	CacheDurationHours int    `json:"cache_duration_hours"`
}

// Snapshot is the unit of persistence: metadata plus the full holiday map.
type Snapshot struct {
	Metadata CacheMetadata `json:"metadata"`
	Holidays HolidayMap    `json:"holidays"`
}

// DateKey formats t as a canonical holiday key.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}
