package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger creates a middleware that logs each incoming handshake
// request. The query string is omitted because the credential travels there.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			var ip string
			if ok {
				ip = reqMeta.IP
			}

			logger.Info("Incoming handshake request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Bool("hasCredential", r.URL.Query().Has("token")),
				slog.String("ip", ip),
			)
			next.ServeHTTP(w, r)
		})
	}
}
