package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Media serves a stored artifact addressed by a signed key. The signature and
// expiry come from the query string; anything that fails verification is a 404
// so probes cannot distinguish missing keys from bad signatures.
func (a *App) Media(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		http.NotFound(w, r)
		return
	}

	exp := r.URL.Query().Get("exp")
	sig := r.URL.Query().Get("sig")
	if err := a.Store.VerifySignedKey(key, exp, sig); err != nil {
		a.Logger.Debug().Err(err).Str("key", key).Msg("media: rejected reference")
		http.NotFound(w, r)
		return
	}

	fullPath, err := a.Store.FilePath(key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, fullPath)
}
