package domain

import "time"

// CallbackEvent is one append-only audit row per received provider
// notification. Decision logic never reads these rows.
type CallbackEvent struct {
	ID               string
	ExternalID       string
	DetectedType     string
	RawPayload       []byte
	ProcessingStatus string
	OriginCountry    string
	ReceivedAt       time.Time
}

// Processing statuses recorded on audit rows.
const (
	CallbackProcessed = "processed"
	CallbackDropped   = "dropped"
	CallbackFailed    = "failed"
)
