package generation

import (
	"strings"

	"tunesmith/internal/domain"
)

// rejectionIndicators are substrings that mark a provider error as a content
// policy rejection rather than a technical failure. The provider does not
// always send a structured reason code, so this matching is heuristic.
var rejectionIndicators = []string{
	"content policy",
	"policy violation",
	"moderation",
	"rejected",
	"forbidden",
	"inappropriate",
	"copyright",
	"explicit content",
	"nsfw",
	"banned",
}

// ClassifyFailure maps a raw provider error string to a terminal status.
// Rejected means resubmitting the identical input will fail again and the
// user should rephrase; failed means a retry may succeed.
func ClassifyFailure(message string) domain.TrackStatus {
	lowered := strings.ToLower(message)
	for _, indicator := range rejectionIndicators {
		if strings.Contains(lowered, indicator) {
			return domain.TrackStatusRejected
		}
	}
	return domain.TrackStatusFailed
}
