package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/events"
	obscontext "github.com/smallbiznis/cabletrack/internal/observability/context"
	"github.com/smallbiznis/cabletrack/internal/ratelimit"
)

const contextUserKey = "current_user"

// AuthRequired resolves the bearer token to a user and stores it on the
// gin context and the request context's actor.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "user", strconv.FormatInt(user.ID, 10))
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserKey, user)
		c.Next()
	}
}

// RequireCapability gates a route on a casbin capability. It must run after
// AuthRequired.
func (s *Server) RequireCapability(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), user, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// ApprovalRateLimit throttles the token link routes per client IP.
func (s *Server) ApprovalRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, res := s.approvalLimiter.Allow(c.Request.Context(), endpoint, c.ClientIP())
		if res != nil {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !ok {
			c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(res)))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// CorrelationID tags the request context so events published while handling
// it carry the same id as the access log.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Correlation-Id"))
		if id == "" {
			id = obscontext.RequestIDFromContext(c.Request.Context())
		}
		ctx, _ := events.EnsureCorrelationID(events.ContextWithCorrelationID(c.Request.Context(), id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func currentUser(c *gin.Context) *authdomain.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*authdomain.User)
	return user
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
