package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tunesmith/internal/http/handlers"
	"tunesmith/internal/middleware"
)

// NewRouter assembles the public API surface.
//
// The callback receiver is deliberately outside both auth and rate limiting:
// the provider does not hold credentials and must never be throttled into
// dropping a notification. The poll endpoint accepts either a user session or
// the internal service token so the reconciler sweep can drive it.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(splitOrigins(app.Config.AllowedOrigins)),
		middleware.I18N(app.Config.DefaultLocale, app.Geo),
	)

	r.Get("/v1/healthz", app.Health)

	r.Post("/v1/callbacks/muse", app.MuseCallback)

	r.Get("/media/*", app.Media)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthSessionOrInternal(app.Config.JWTSecret, app.Config.InternalAPIToken))
		r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))
		r.Post("/v1/generation/{external_id}/poll", app.GenerationPoll)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))
		r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))
		r.Route("/v1/tracks", func(r chi.Router) {
			r.Post("/", app.TrackSubmit)
			r.Get("/", app.TrackList)
			r.Get("/{id}", app.TrackGet)
			r.Delete("/{id}", app.TrackDelete)
			r.Get("/{id}/bundle", app.TrackBundle)
		})
	})

	return r
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
