package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/pkg/jwt"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/response"
)

// Context keys set by AuthMiddleware
const (
	ContextParticipant = "participant"
	ContextUserID      = "user_id"
	ContextRole        = "role"
)

// RevocationChecker reports whether validated claims have been revoked
type RevocationChecker interface {
	IsRevoked(ctx context.Context, claims *jwt.Claims) (bool, error)
}

// AuthOptions tune AuthMiddleware
type AuthOptions struct {
	// AllowQueryToken accepts ?token= for transports that cannot set headers (browser websockets)
	AllowQueryToken bool
}

// AuthMiddleware validates the bearer token and stores the caller's
// participant reference, user_id and role in the Gin context.
// revocationChecker may be nil.
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker, opts ...AuthOptions) gin.HandlerFunc {
	var opt AuthOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c, opt.AllowQueryToken)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		kind, err := domain.KindFromRole(claims.Role)
		if err != nil {
			response.Forbidden(c, "Role not allowed")
			c.Abort()
			return
		}
		ref := domain.ParticipantRef{ID: claims.ParticipantID, Kind: kind}
		if err := ref.Validate(); err != nil {
			response.Unauthorized(c, "Invalid token subject")
			c.Abort()
			return
		}

		if revocationChecker != nil {
			revoked, err := revocationChecker.IsRevoked(c.Request.Context(), claims)
			if err != nil {
				// fail open: signature and expiry were already checked
				logger.FromContext(c.Request.Context()).Warn("Revocation check unavailable", zap.Error(err))
			} else if revoked {
				response.Unauthorized(c, "Token revoked")
				c.Abort()
				return
			}
		}

		c.Set(ContextParticipant, ref)
		c.Set(ContextUserID, ref.ID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if allowQuery {
		if token := c.Query("token"); token != "" {
			return token, true
		}
	}
	return "", false
}

// Participant returns the authenticated caller
func Participant(c *gin.Context) (domain.ParticipantRef, bool) {
	v, ok := c.Get(ContextParticipant)
	if !ok {
		return domain.ParticipantRef{}, false
	}
	ref, ok := v.(domain.ParticipantRef)
	return ref, ok
}

// RequireRole rejects callers whose role is not one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "Insufficient role")
		c.Abort()
	}
}
