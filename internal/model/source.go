package model

import "time"

// Source is one county site the system ingests from.
type Source struct {
	ID       string
	Name     string // matches the webhook title's SourceName segment
	IndexURL string
	IDPrefix string // prefix the source puts on its native identifiers
	Active   bool
}

// Lock is the persisted per-source crawl lock row.
type Lock struct {
	SourceID string
	Held     bool
	Since    time.Time
}
