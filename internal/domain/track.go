package domain

import "time"

// TrackStatus enumerates track lifecycle states.
type TrackStatus string

const (
	TrackStatusPending    TrackStatus = "pending"
	TrackStatusProcessing TrackStatus = "processing"
	TrackStatusCompleted  TrackStatus = "completed"
	TrackStatusFailed     TrackStatus = "failed"
	TrackStatusRejected   TrackStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s TrackStatus) Terminal() bool {
	switch s {
	case TrackStatusCompleted, TrackStatusFailed, TrackStatusRejected:
		return true
	}
	return false
}

// Track is the durable record tracking one generation job, or one fan-out
// variant of it. Variant rows carry ParentID, no ExternalID, and are
// completed at creation.
type Track struct {
	ID           string
	UserID       string
	ExternalID   string // provider correlation id; empty on variant rows
	ParentID     string
	Title        string
	Status       TrackStatus
	SourceURL    string // remote origin of the primary artifact
	StorageKey   string
	AudioURL     string // time-bounded retrievable reference
	PromptJSON   []byte
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
