package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// parseLevel maps a per-request override to a zerolog level. Unknown values
// keep the server's level.
func parseLevel(s string) (zerolog.Level, bool) {
	switch s {
	case "off":
		return zerolog.Disabled, true
	case "1": // shorthand for debug
		return zerolog.DebugLevel, true
	case "":
		return zerolog.NoLevel, false
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, false
	}
	return lvl, true
}

// requestLogLevel returns a per-request override from ?log= or X-Log-Level.
func requestLogLevel(r *http.Request) (zerolog.Level, bool) {
	if lvl, ok := parseLevel(r.URL.Query().Get("log")); ok {
		return lvl, true
	}
	return parseLevel(r.Header.Get("X-Log-Level"))
}

// requestLogger attaches a request-scoped logger (with request_id) to the
// context and logs one line per completed request.
func requestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := base.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				l = l.With().Str("request_id", rid).Logger()
			}
			if lvl, ok := requestLogLevel(r); ok {
				l = l.Level(lvl)
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(l.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := l.Info()
			if status >= http.StatusInternalServerError {
				ev = l.Warn()
			}
			ev.Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("dur", time.Since(start)).
				Msg("request")
		})
	}
}
