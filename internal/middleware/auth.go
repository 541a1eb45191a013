package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"taskboard/backend/internal/apperrors"
	"taskboard/backend/internal/auth"
	"taskboard/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const ctxUserKey = "auth.user"

// UnauthenticatedMessage is the body message of every 401 from RequireAuth.
const UnauthenticatedMessage = "Authentication required"

type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

type UserResolver interface {
	ResolveUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RequireAuth admits a request only when it carries a valid bearer token for
// a user that still exists. Every rejection gets the same 401 body; the
// reason is only logged at debug level.
func RequireAuth(tokens TokenVerifier, users UserResolver, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			logger.DebugContext(ctx, "auth_header_rejected")
			abortUnauthenticated(c)
			return
		}

		userID, err := tokens.Verify(raw)
		if err != nil {
			logger.DebugContext(ctx, "auth_token_rejected", "err", err)
			abortUnauthenticated(c)
			return
		}

		user, err := users.ResolveUser(ctx, userID)
		if err != nil {
			if apperrors.Is(err, apperrors.KindUnauthenticated) {
				logger.DebugContext(ctx, "auth_user_rejected", "user_id", userID.String())
				abortUnauthenticated(c)
				return
			}
			logger.ErrorContext(ctx, "auth_user_lookup_failed", "user_id", userID.String(), "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": apperrors.InternalMessage,
				"data":    nil,
			})
			return
		}

		c.Set(ctxUserKey, user)
		c.Request = c.Request.WithContext(auth.WithUserID(ctx, user.ID))

		c.Next()
	}
}

// bearerToken accepts "Bearer <token>" with a case-insensitive scheme.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": UnauthenticatedMessage,
		"data":    nil,
	})
}

// CurrentUser returns the user attached by RequireAuth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

// UserIDFromContext returns the user id RequireAuth put on the request context.
func UserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	if c.Request == nil {
		return uuid.Nil, false
	}
	return auth.UserIDFrom(c.Request.Context())
}
