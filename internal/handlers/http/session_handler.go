package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	apperrors "huddle/pkg/errors"
)

type SessionHandler struct {
	sessions ports.SessionService
}

func NewSessionHandler(sessions ports.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/session", h.Issue)
}

type nickRequest struct {
	Nick string `form:"nick" json:"nick"`
}

// Issue hands out a token that keys the caller's presence and mailbox
// independently of address and nick.
func (h *SessionHandler) Issue(c *gin.Context) {
	var req nickRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	session, err := h.sessions.Issue(req.Nick)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidNick) {
			c.Error(apperrors.InvalidInput(err))
			return
		}
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to issue session", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusCreated, session)
}
