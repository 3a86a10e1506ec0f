package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"photovault/internal/pkg/jwt"
	"photovault/internal/pkg/response"
	"photovault/internal/storage"
)

const (
	userIDKey    = "user_id"
	userIDHeader = "X-User-ID"
)

// Identity resolves the caller's user id. Two kinds of callers are accepted:
//
//  1. Trusted internal services: Authorization: Bearer <internalToken> plus
//     the X-User-ID header.
//  2. Gateway clients: Authorization: Bearer <HS256 JWT> with a user_id claim.
//
// An empty internalToken disables the first form; a nil tokens disables the second.
func Identity(internalToken string, tokens *jwt.Service, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "identity").Logger()

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logAuthFailure(log, c, http.StatusUnauthorized, "missing_auth")
			response.Abort(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			logAuthFailure(log, c, http.StatusUnauthorized, "invalid_auth_format")
			response.Abort(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			return
		}
		token := parts[1]

		if internalToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(internalToken)) == 1 {
			userID := strings.TrimSpace(c.GetHeader(userIDHeader))
			if userID == "" {
				logAuthFailure(log, c, http.StatusBadRequest, "user_id_missing")
				response.Abort(c, http.StatusBadRequest, "USER_ID_MISSING", userIDHeader+" header is required")
				return
			}
			if !storage.ValidSegment(userID) || len(userID) > 128 {
				logAuthFailure(log, c, http.StatusBadRequest, "invalid_user_id")
				response.Abort(c, http.StatusBadRequest, "INVALID_USER_ID", userIDHeader+" is not a valid user id")
				return
			}
			c.Set(userIDKey, userID)
			c.Next()
			return
		}

		if tokens == nil {
			logAuthFailure(log, c, http.StatusUnauthorized, "invalid_token")
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			return
		}
		claims, err := tokens.ValidateToken(token)
		if err != nil {
			logAuthFailure(log, c, http.StatusUnauthorized, "invalid_token")
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		if !storage.ValidSegment(claims.UserID) || len(claims.UserID) > 128 {
			logAuthFailure(log, c, http.StatusUnauthorized, "invalid_user_claim")
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Token carries an invalid user id")
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the id set by Identity, or "" when the request is anonymous.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func logAuthFailure(log zerolog.Logger, c *gin.Context, status int, reason string) {
	log.Warn().
		Int("status", status).
		Str("request_id", requestID(c)).
		Str("client_ip", c.ClientIP()).
		Str("reason", reason).
		Msg("authentication failed")
}
