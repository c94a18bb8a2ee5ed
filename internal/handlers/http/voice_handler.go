package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/middleware"
	"huddle/pkg/errors"
	"huddle/pkg/validation"
)

type VoiceHandler struct {
	voice      ports.VoiceService
	identity   *middleware.IdentityResolver
	iceServers []webrtc.ICEServer
}

func NewVoiceHandler(
	voice ports.VoiceService,
	identity *middleware.IdentityResolver,
	iceServers []webrtc.ICEServer,
) *VoiceHandler {
	return &VoiceHandler{
		voice:      voice,
		identity:   identity,
		iceServers: iceServers,
	}
}

func (h *VoiceHandler) SetupRoutes(api *gin.RouterGroup) {
	voice := api.Group("/voice")
	{
		voice.POST("/join", h.Join)
		voice.GET("/poll", h.Poll)
		voice.POST("/signal", h.Signal)
		voice.POST("/leave", h.Leave)
		voice.GET("/ice", h.ICEServers)
	}
}

// caller resolves the participant a voice request acts for.
func (h *VoiceHandler) caller(c *gin.Context) (domain.Participant, bool) {
	var req nickRequest
	if err := c.ShouldBind(&req); err != nil {
		if _, ok := middleware.SessionParticipant(c); !ok {
			c.Error(errors.NewInvalidInputError("invalid request format"))
			return domain.Participant{}, false
		}
	}

	who, err := h.identity.Resolve(c, req.Nick)
	if err != nil {
		c.Error(err)
		return domain.Participant{}, false
	}
	return who, true
}

func (h *VoiceHandler) Join(c *gin.Context) {
	who, ok := h.caller(c)
	if !ok {
		return
	}

	peers, err := h.voice.Join(c.Request.Context(), who)
	if err != nil {
		c.Error(voiceError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    who.ID,
		"peers": peers,
	})
}

// Poll never blocks. An empty mailbox, or a caller that never joined, is an
// empty list.
func (h *VoiceHandler) Poll(c *gin.Context) {
	who, ok := h.caller(c)
	if !ok {
		return
	}

	msgs, active, err := h.voice.Poll(c.Request.Context(), who.ID)
	if err != nil {
		c.Error(voiceError(err))
		return
	}
	if msgs == nil {
		msgs = []domain.SignalMessage{}
	}

	c.Header(middleware.VoiceActiveHeader, strconv.FormatBool(active))

	c.JSON(http.StatusOK, msgs)
}

type signalRequest struct {
	From      string `form:"from" json:"from"`
	To        string `form:"to" json:"to"`
	Type      string `form:"type" json:"type"`
	SDP       string `form:"sdp" json:"sdp"`
	Candidate string `form:"candidate" json:"candidate"`
}

// Signal queues an opaque offer, answer or candidate for another
// participant. Signals to users that are not in the room are accepted and
// eventually pruned.
func (h *VoiceHandler) Signal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	from, err := h.identity.Resolve(c, req.From)
	if err != nil {
		c.Error(err)
		return
	}

	to := strings.TrimSpace(req.To)
	if to == "" {
		c.Error(errors.InvalidInput(domain.ErrMissingRecipient))
		return
	}
	if err := validation.ValidateUserID(to); err != nil {
		c.Error(errors.InvalidInput(err))
		return
	}
	signalType, err := domain.ParseSignalType(req.Type)
	if err != nil {
		c.Error(errors.InvalidInput(err))
		return
	}

	msg := domain.SignalMessage{
		From:      from.ID,
		To:        domain.UserID(to),
		Type:      signalType,
		SDP:       domain.OptionalString(req.SDP),
		Candidate: domain.OptionalString(req.Candidate),
	}
	if err := h.voice.Signal(c.Request.Context(), msg); err != nil {
		c.Error(voiceError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *VoiceHandler) Leave(c *gin.Context) {
	who, ok := h.caller(c)
	if !ok {
		return
	}

	if err := h.voice.Leave(c.Request.Context(), who.ID); err != nil {
		c.Error(voiceError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *VoiceHandler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ice_servers": h.iceServers})
}
