package http

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/middleware"
	apperrors "huddle/pkg/errors"
	"huddle/pkg/utils"
)

type ChatHandler struct {
	chat     ports.ChatService
	media    ports.MediaStore
	identity *middleware.IdentityResolver
	maxBytes int64
}

func NewChatHandler(
	chat ports.ChatService,
	media ports.MediaStore,
	identity *middleware.IdentityResolver,
	maxUploadBytes int64,
) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		media:    media,
		identity: identity,
		maxBytes: maxUploadBytes,
	}
}

func (h *ChatHandler) SetupRoutes(api *gin.RouterGroup) {
	channels := api.Group("/channels")
	{
		channels.GET("", h.ListChannels)
		channels.POST("", h.CreateChannel)
		channels.GET("/:id", h.GetChannel)
		channels.DELETE("/:id", h.DeleteChannel)
		channels.GET("/:id/messages", h.ListMessages)
		channels.POST("/:id/messages", h.PostMessage)
	}
	api.DELETE("/messages/:id", h.DeleteMessage)
}

type channelView struct {
	ID        domain.ChannelID `json:"id"`
	Name      string           `json:"name"`
	Icon      string           `json:"icon"`
	Desc      string           `json:"desc"`
	CreatedAt time.Time        `json:"created_at"`
}

type messageView struct {
	ID        domain.MessageID `json:"id"`
	ChannelID domain.ChannelID `json:"channel_id"`
	Nick      string           `json:"nick"`
	Content   string           `json:"content"`
	IP        string           `json:"ip"`
	Timestamp time.Time        `json:"timestamp"`
	Time      string           `json:"time"`
}

func newChannelView(ch *domain.Channel) channelView {
	return channelView{
		ID:        ch.ID,
		Name:      ch.Name,
		Icon:      ch.Icon,
		Desc:      ch.Description,
		CreatedAt: ch.CreatedAt,
	}
}

func newMessageView(m *domain.Message) messageView {
	return messageView{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Nick:      m.Nick,
		Content:   m.Content,
		IP:        m.OriginIP,
		Timestamp: m.Timestamp,
		Time:      utils.FormatClock(m.Timestamp),
	}
}

func (h *ChatHandler) ListChannels(c *gin.Context) {
	channels, err := h.chat.ListChannels(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	if channels == nil {
		channels = []domain.ChannelSummary{}
	}
	c.JSON(http.StatusOK, channels)
}

func (h *ChatHandler) CreateChannel(c *gin.Context) {
	var req struct {
		Name string `form:"name" json:"name"`
		Icon string `form:"icon" json:"icon"`
		Desc string `form:"desc" json:"desc"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	ch, err := h.chat.CreateChannel(c.Request.Context(), req.Name, req.Icon, req.Desc)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, newChannelView(ch))
}

// GetChannel returns one channel's header data.
func (h *ChatHandler) GetChannel(c *gin.Context) {
	ch, err := h.chat.GetChannel(c.Request.Context(), domain.ChannelID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newChannelView(ch))
}

func (h *ChatHandler) DeleteChannel(c *gin.Context) {
	if err := h.chat.DeleteChannel(c.Request.Context(), domain.ChannelID(c.Param("id"))); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListMessages returns the latest messages oldest first. A nick or session
// marks the caller present in the channel.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	var viewer *domain.Participant
	_, hasSession := middleware.SessionParticipant(c)
	if nick := strings.TrimSpace(c.Query("nick")); nick != "" || hasSession {
		who, err := h.identity.Resolve(c, nick)
		if err != nil {
			c.Error(err)
			return
		}
		viewer = &who
	}

	msgs, err := h.chat.ListMessages(c.Request.Context(), domain.ChannelID(c.Param("id")), viewer)
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, newMessageView(m))
	}
	c.JSON(http.StatusOK, out)
}

func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Nick    string `form:"nick" json:"nick"`
		Message string `form:"message" json:"message"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	author, err := h.identity.Resolve(c, req.Nick)
	if err != nil {
		c.Error(err)
		return
	}

	attachment, err := h.saveAttachment(c)
	if err != nil {
		c.Error(err)
		return
	}

	msg, err := h.chat.PostMessage(c.Request.Context(), ports.PostMessageRequest{
		ChannelID:  domain.ChannelID(c.Param("id")),
		Author:     author,
		Text:       req.Message,
		Attachment: attachment,
		OriginIP:   c.ClientIP(),
	})
	if err != nil {
		if attachment != nil {
			if delErr := h.media.Delete(c.Request.Context(), attachment); delErr != nil {
				c.Error(delErr).SetType(gin.ErrorTypePrivate)
			}
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, newMessageView(msg))
}

// saveAttachment stores the optional multipart file. No file is not an error.
func (h *ChatHandler) saveAttachment(c *gin.Context) (*domain.Attachment, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, nil
	}
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInvalidInputError("invalid file upload")
	}
	if h.media == nil {
		return nil, apperrors.NewServiceUnavailableError("attachments are disabled")
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		return nil, apperrors.NewPayloadTooLargeError("attachment too large")
	}

	return h.store(c, header)
}

func (h *ChatHandler) store(c *gin.Context, header *multipart.FileHeader) (*domain.Attachment, error) {
	file, err := header.Open()
	if err != nil {
		return nil, apperrors.NewInvalidInputError("invalid file upload")
	}
	defer file.Close()

	attachment, err := h.media.Save(c.Request.Context(), header.Filename, file)
	if errors.Is(err, domain.ErrAttachmentTooLarge) {
		return nil, apperrors.NewPayloadTooLargeError("attachment too large")
	}
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to store attachment", http.StatusInternalServerError)
	}
	return attachment, nil
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	if err := h.chat.DeleteMessage(c.Request.Context(), domain.MessageID(c.Param("id"))); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
