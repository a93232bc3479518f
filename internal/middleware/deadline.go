package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ExtendDeadlines moves the connection read and write deadlines of a request
// to d from now. It is applied to routes that wait on more than one slow
// backend call, where the server-wide timeouts are too short.
func ExtendDeadlines(d time.Duration, log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline := time.Now().Add(d)
			rc := http.NewResponseController(w)
			if err := rc.SetReadDeadline(deadline); err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Read deadline not extended")
			}
			if err := rc.SetWriteDeadline(deadline); err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Write deadline not extended")
			}
			next.ServeHTTP(w, r)
		})
	}
}
