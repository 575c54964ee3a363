package domain

import "time"

// AssetKind enumerates derived artifact types attached to a track.
type AssetKind string

const (
	AssetKindVideo AssetKind = "video"
	AssetKindWav   AssetKind = "wav"
)

// TrackAsset is a derived artifact (video render, wav master) produced for an
// already generated track. Assets are immutable once written.
type TrackAsset struct {
	ID         string
	TrackID    string
	Kind       AssetKind
	SourceURL  string
	StorageKey string
	URL        string
	Bytes      int64
	CreatedAt  time.Time
}
