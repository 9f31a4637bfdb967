package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/domain"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/metrics"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/store"
)

// Handshake rejection reasons. All three refuse the connection outright;
// there is no degraded state.
const (
	RejectUnauthenticated   = "unauthenticated"
	RejectInvalidCredential = "invalid_credential"
	RejectIdentityNotFound  = "identity_not_found"
)

// IdentityLookup resolves a token subject against the session store.
type IdentityLookup func(ctx context.Context, userID string) (*domain.User, error)

// NewAuthMiddleware validates the handshake credential: a signed HMAC token
// carried in the `token` query parameter (browser WebSocket clients cannot
// set headers) or, failing that, the session-token cookie. The subject is
// then resolved against the session store and the resulting identity is
// attached to the request metadata for the lifetime of the connection.
func NewAuthMiddleware(logger *slog.Logger, jwtSecret string, lookup IdentityLookup) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				if cookie, err := r.Cookie("session-token"); err == nil {
					tokenString = cookie.Value
				}
			}
			if tokenString == "" {
				logger.Warn("Connection attempt without credential", slog.String("ip", reqMeta.IP))
				metrics.HandshakeRejections.WithLabelValues(RejectUnauthenticated).Inc()
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}

			// Parse and validate the JWT token with HMAC signing
			token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("Invalid credential presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				metrics.HandshakeRejections.WithLabelValues(RejectInvalidCredential).Inc()
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*jwt.RegisteredClaims)
			if !ok || claims.Subject == "" {
				logger.Warn("Valid token missing 'sub' claim", slog.String("ip", reqMeta.IP))
				metrics.HandshakeRejections.WithLabelValues(RejectInvalidCredential).Inc()
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			user, err := lookup(r.Context(), claims.Subject)
			if errors.Is(err, store.ErrUserNotFound) {
				logger.Warn("Credential subject no longer resolvable",
					slog.String("ip", reqMeta.IP),
					slog.String("userID", claims.Subject),
				)
				metrics.HandshakeRejections.WithLabelValues(RejectIdentityNotFound).Inc()
				http.Error(w, "Unknown identity", http.StatusUnauthorized)
				return
			}
			if err != nil {
				logger.Error("Identity lookup failed",
					slog.String("ip", reqMeta.IP),
					slog.Any("error", err),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			reqMeta.Identity = user.Identity()
			next.ServeHTTP(w, r)
		})
	}
}
