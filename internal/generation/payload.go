package generation

import "encoding/json"

// PayloadKind tags the recognized callback payload shapes.
type PayloadKind string

const (
	PayloadTrackResult  PayloadKind = "track_result"
	PayloadDerivedAsset PayloadKind = "derived_asset"
	PayloadError        PayloadKind = "error"
	PayloadCatchAll     PayloadKind = "catch_all"
	PayloadUnknown      PayloadKind = "unknown"
)

// ResultItem is one produced output extracted from a notification.
type ResultItem struct {
	SourceURL string
	Title     string
	Tags      string
	Duration  float64
}

// DerivedResult describes a secondary render keyed off an existing
// generation, e.g. a music video or a wav master.
type DerivedResult struct {
	Family    string
	SourceURL string
}

// CallbackPayload is the tagged union a raw callback body classifies into.
// Exactly the fields matching Kind are populated.
type CallbackPayload struct {
	Kind       PayloadKind
	ExternalID string
	Items      []ResultItem
	Derived    *DerivedResult
	ErrorText  string
}

// ClassifyPayload inspects a raw callback body against the known shapes in
// fixed priority order: track result, derived asset, explicit error, then a
// catch-all for anything carrying an extractable correlation id. Bodies that
// match nothing classify as unknown and are dropped by the receiver.
func ClassifyPayload(raw []byte) CallbackPayload {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return CallbackPayload{Kind: PayloadUnknown}
	}

	if payload, ok := asTrackResult(fields); ok {
		return payload
	}
	if payload, ok := asDerivedAsset(fields); ok {
		return payload
	}
	if payload, ok := asExplicitError(fields); ok {
		return payload
	}
	if payload, ok := asCatchAll(fields); ok {
		return payload
	}
	return CallbackPayload{Kind: PayloadUnknown}
}

// asTrackResult matches the primary generation result shape: a correlation
// id plus a tracks array whose entries carry an audio url.
func asTrackResult(fields map[string]any) (CallbackPayload, bool) {
	externalID := correlationID(fields)
	if externalID == "" {
		return CallbackPayload{}, false
	}
	rawTracks, ok := fields["tracks"].([]any)
	if !ok {
		return CallbackPayload{}, false
	}

	items := make([]ResultItem, 0, len(rawTracks))
	for _, entry := range rawTracks {
		track, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := ResultItem{
			SourceURL: stringField(track, "audio_url", "stream_audio_url", "url"),
			Title:     stringField(track, "title"),
			Tags:      stringField(track, "tags"),
			Duration:  floatField(track, "duration"),
		}
		if item.SourceURL == "" {
			continue
		}
		items = append(items, item)
	}

	// An empty tracks array is still this shape: metadata can lag artifact
	// availability, and the handler must treat it as "keep waiting".
	return CallbackPayload{Kind: PayloadTrackResult, ExternalID: externalID, Items: items}, true
}

// asDerivedAsset matches secondary renders keyed off an existing generation.
func asDerivedAsset(fields map[string]any) (CallbackPayload, bool) {
	externalID := correlationID(fields)
	if externalID == "" {
		return CallbackPayload{}, false
	}
	for _, family := range derivedFamilyOrder {
		descriptor := derivedFamilies[family]
		if sourceURL := stringField(fields, descriptor.Field); sourceURL != "" {
			return CallbackPayload{
				Kind:       PayloadDerivedAsset,
				ExternalID: externalID,
				Derived:    &DerivedResult{Family: family, SourceURL: sourceURL},
			}, true
		}
	}
	return CallbackPayload{}, false
}

// asExplicitError matches a correlation id plus a non-empty error string.
func asExplicitError(fields map[string]any) (CallbackPayload, bool) {
	externalID := correlationID(fields)
	if externalID == "" {
		return CallbackPayload{}, false
	}
	message := stringField(fields, "error", "error_message", "failure_reason")
	if message == "" {
		return CallbackPayload{}, false
	}
	return CallbackPayload{Kind: PayloadError, ExternalID: externalID, ErrorText: message}, true
}

// asCatchAll matches any remaining body from which a correlation id can be
// extracted. The receiver routes these through the completion handler with
// no items, which leaves a live record untouched.
func asCatchAll(fields map[string]any) (CallbackPayload, bool) {
	externalID := correlationID(fields)
	if externalID == "" {
		return CallbackPayload{}, false
	}
	return CallbackPayload{Kind: PayloadCatchAll, ExternalID: externalID}, true
}

func correlationID(fields map[string]any) string {
	return stringField(fields, "generation_id", "task_id", "id")
}

func stringField(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func floatField(fields map[string]any, key string) float64 {
	if v, ok := fields[key].(float64); ok {
		return v
	}
	return 0
}
