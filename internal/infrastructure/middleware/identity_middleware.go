package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	apperrors "huddle/pkg/errors"
	"huddle/pkg/validation"
)

const participantKey = "participant"

// bearerToken reads the session token from the Authorization header or the
// token query parameter. Browsers can't set headers on websocket upgrades.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

// SessionMiddleware resolves a session token when one is present. Requests
// without a token pass through and are keyed by IdentityResolver instead; a
// token that fails to verify is rejected.
func SessionMiddleware(sessions ports.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		who, err := sessions.Resolve(token)
		if err != nil {
			c.Error(apperrors.NewUnauthorizedError(err))
			c.Abort()
			return
		}

		c.Set(participantKey, who)
		c.Next()
	}
}

// SessionParticipant returns the participant set by SessionMiddleware.
func SessionParticipant(c *gin.Context) (domain.Participant, bool) {
	v, ok := c.Get(participantKey)
	if !ok {
		return domain.Participant{}, false
	}
	who, ok := v.(domain.Participant)
	return who, ok
}

// IdentityResolver turns a request into the presence/mailbox key of its caller.
type IdentityResolver struct {
	mode domain.IdentityMode
}

func NewIdentityResolver(mode domain.IdentityMode) *IdentityResolver {
	return &IdentityResolver{mode: mode}
}

// Resolve prefers a verified session. Without one the caller is keyed by
// nick alone in nick mode and by "ip|nick" otherwise, so two people picking
// the same nick from different hosts stay apart.
func (r *IdentityResolver) Resolve(c *gin.Context, nick string) (domain.Participant, error) {
	if who, ok := SessionParticipant(c); ok {
		return who, nil
	}

	nick = strings.TrimSpace(nick)
	if err := validation.ValidateNick(nick); err != nil {
		return domain.Participant{}, apperrors.InvalidInput(err)
	}

	if r.mode == domain.IdentityNick {
		return domain.Participant{ID: domain.UserID(nick), Nick: nick}, nil
	}
	return domain.Participant{ID: domain.UserID(c.ClientIP() + "|" + nick), Nick: nick}, nil
}
