package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
)

const (
	HeaderActorType = "X-Actor-Type"
	HeaderActorID   = "X-Actor-ID"
)

// ActorContext carries the caller identity set by the upstream gateway into
// the request context for the audit trail.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorType := strings.TrimSpace(c.GetHeader(HeaderActorType))
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if actorType == "" && actorID != "" {
			actorType = string(auditdomain.ActorTypeUser)
		}
		if actorType != "" {
			ctx := auditdomain.ContextWithActor(c.Request.Context(), actorType, actorID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
