package handlers

import "tunesmith/internal/domain"

// statusHints maps locale and track status to a short user-facing suggestion.
// Rejected prompts should be rephrased; transient failures are worth a retry;
// in-flight generations just need patience.
var statusHints = map[string]map[domain.TrackStatus]string{
	"en": {
		domain.TrackStatusPending:    "Your track is queued. Check back shortly.",
		domain.TrackStatusProcessing: "Your track is still being generated. Check back shortly.",
		domain.TrackStatusCompleted:  "Your track is ready.",
		domain.TrackStatusFailed:     "Generation failed. Please try again.",
		domain.TrackStatusRejected:   "The prompt was rejected. Try rephrasing it.",
	},
	"es": {
		domain.TrackStatusPending:    "Tu pista está en cola. Vuelve en un momento.",
		domain.TrackStatusProcessing: "Tu pista aún se está generando. Vuelve en un momento.",
		domain.TrackStatusCompleted:  "Tu pista está lista.",
		domain.TrackStatusFailed:     "La generación falló. Inténtalo de nuevo.",
		domain.TrackStatusRejected:   "El mensaje fue rechazado. Intenta reformularlo.",
	},
	"id": {
		domain.TrackStatusPending:    "Trek Anda dalam antrean. Periksa kembali sebentar lagi.",
		domain.TrackStatusProcessing: "Trek Anda masih dibuat. Periksa kembali sebentar lagi.",
		domain.TrackStatusCompleted:  "Trek Anda sudah siap.",
		domain.TrackStatusFailed:     "Pembuatan gagal. Silakan coba lagi.",
		domain.TrackStatusRejected:   "Prompt ditolak. Coba ubah kata-katanya.",
	},
	"ja": {
		domain.TrackStatusPending:    "トラックは順番待ちです。しばらくしてから確認してください。",
		domain.TrackStatusProcessing: "トラックはまだ生成中です。しばらくしてから確認してください。",
		domain.TrackStatusCompleted:  "トラックの準備ができました。",
		domain.TrackStatusFailed:     "生成に失敗しました。もう一度お試しください。",
		domain.TrackStatusRejected:   "プロンプトが拒否されました。言い換えてみてください。",
	},
}

func statusHint(locale string, status domain.TrackStatus) string {
	hints, ok := statusHints[locale]
	if !ok {
		hints = statusHints["en"]
	}
	if hint, ok := hints[status]; ok {
		return hint
	}
	return statusHints["en"][status]
}
