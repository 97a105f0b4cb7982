package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sympfindx-server/internal/domain"
)

// Header names carrying the caller identity established by the upstream
// authentication gateway. This service trusts them as-is.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const actorKey = "actor"

// RequireActor extracts the caller identity from the gateway headers and
// rejects requests without a valid one.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := domain.Actor{
			ID:   c.GetHeader(HeaderActorID),
			Role: domain.Role(c.GetHeader(HeaderActorRole)),
		}

		if actor.ID == "" || !actor.Role.IsValid() {
			c.AbortWithStatusJSON(http.StatusForbidden, domain.NewAPIError(
				domain.CodeForbidden,
				"missing or invalid caller identity",
				"X-Actor-ID and X-Actor-Role headers are required",
				c.GetString("correlation_id"),
			))
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the caller identity stored by RequireActor.
func ActorFrom(c *gin.Context) domain.Actor {
	if actor, ok := c.Get(actorKey); ok {
		if a, ok := actor.(domain.Actor); ok {
			return a
		}
	}
	return domain.Actor{}
}

// RequireRole rejects callers whose role is not in the allowed set. Runs
// after RequireActor.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if _, ok := allowed[actor.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, domain.NewAPIError(
				domain.CodeForbidden,
				"insufficient role",
				"role "+actor.Role.String()+" may not call this endpoint",
				c.GetString("correlation_id"),
			))
			return
		}
		c.Next()
	}
}
