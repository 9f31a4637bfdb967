package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/manjeet0505/SeniorJunior-sub000/pkg/state"
)

// PresentConnectionFinder looks up the connection currently registered as
// the user's presence entry.
type PresentConnectionFinder func(userID string) (*state.Connection, bool)

// NewSessionCycler enforces the single-session-per-user policy: when an
// authenticated handshake arrives for a user who is already online, the
// existing connection is closed and the new one proceeds. Last connection
// wins. Must run after the auth middleware.
func NewSessionCycler(logger *slog.Logger, finder PresentConnectionFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Session cycler could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if reqMeta.Identity.ID == "" {
				logger.Warn("Session cycler could not determine userID from metadata; blocking request for safety.")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if existing, found := finder(reqMeta.Identity.ID); found {
				logger.Info("Cycling session: closing existing connection",
					slog.String("userID", reqMeta.Identity.ID),
					slog.String("connID", existing.ID.String()),
				)
				existing.Transport.Close(errors.New("session superseded by a newer connection"))
			}
			next.ServeHTTP(w, r)
		})
	}
}
