package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	apperrors "huddle/pkg/errors"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

// UnknownChannelName is shown for channels that no longer exist.
const UnknownChannelName = "Unknown room"

type ChatConfig struct {
	HistoryLimit   int
	DefaultChannel domain.Channel
}

type chatService struct {
	channels ports.ChannelRepository
	messages ports.MessageRepository
	presence ports.PresenceRegistry
	renderer *ContentRenderer
	cfg      ChatConfig
	now      func() time.Time
	metrics  *MetricsService
	logger   *zap.SugaredLogger
}

func NewChatService(
	channels ports.ChannelRepository,
	messages ports.MessageRepository,
	presence ports.PresenceRegistry,
	renderer *ContentRenderer,
	cfg ChatConfig,
	metrics *MetricsService,
	logger *zap.SugaredLogger,
	opts ...Option,
) ports.ChatService {
	o := buildOptions(opts)
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.DefaultChannel.Icon == "" {
		cfg.DefaultChannel.Icon = domain.DefaultChannelIcon
	}
	return &chatService{
		channels: channels,
		messages: messages,
		presence: presence,
		renderer: renderer,
		cfg:      cfg,
		now:      o.now,
		metrics:  metrics,
		logger:   logger,
	}
}

// EnsureDefaultChannel creates the configured default channel when the store is empty.
func (s *chatService) EnsureDefaultChannel(ctx context.Context) error {
	n, err := s.channels.Count(ctx)
	if err != nil {
		return storeError(err, "count_channels")
	}
	if n > 0 {
		return nil
	}

	d := s.cfg.DefaultChannel
	ch, err := s.CreateChannel(ctx, d.Name, d.Icon, d.Description)
	if err != nil {
		return err
	}
	s.logger.Infow("seeded default channel", "channel_id", ch.ID, "name", ch.Name)
	return nil
}

func (s *chatService) CreateChannel(ctx context.Context, name, icon, desc string) (*domain.Channel, error) {
	name = utils.SanitizeString(name)
	icon = utils.SanitizeString(icon)
	desc = utils.SanitizeString(desc)

	if err := validation.ValidateChannelName(name); err != nil {
		return nil, apperrors.InvalidInput(err)
	}
	if err := validation.ValidateChannelMeta(icon, desc); err != nil {
		return nil, apperrors.InvalidInput(err)
	}
	icon = utils.FirstNonEmpty(icon, domain.DefaultChannelIcon)

	ch := &domain.Channel{
		ID:          domain.ChannelID(utils.NewChannelID()),
		Name:        name,
		Icon:        icon,
		Description: desc,
		CreatedAt:   s.now(),
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, storeError(err, "create_channel")
	}

	s.metrics.ChannelChanged("create")
	s.logger.Infow("channel created", "channel_id", ch.ID, "name", ch.Name)
	return ch, nil
}

func (s *chatService) GetChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	if err := validation.ValidateID(string(id), "channel id"); err != nil {
		return nil, apperrors.InvalidInput(err)
	}
	ch, err := s.channels.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "get_channel")
	}
	return ch, nil
}

func (s *chatService) ChannelName(ctx context.Context, id domain.ChannelID) string {
	ch, err := s.channels.GetByID(ctx, id)
	if err != nil {
		return UnknownChannelName
	}
	return ch.Name
}

// DeleteChannel removes the channel and its messages. Unknown ids are not an error.
func (s *chatService) DeleteChannel(ctx context.Context, id domain.ChannelID) error {
	if err := validation.ValidateID(string(id), "channel id"); err != nil {
		return apperrors.InvalidInput(err)
	}
	if err := s.channels.Delete(ctx, id); err != nil {
		return storeError(err, "delete_channel")
	}

	s.metrics.ChannelChanged("delete")
	s.logger.Infow("channel deleted", "channel_id", id)
	return nil
}

// ListChannels sweeps expired channel presence, then counts active users per
// channel against one cutoff.
func (s *chatService) ListChannels(ctx context.Context) ([]domain.ChannelSummary, error) {
	channels, err := s.ListChannelRows(ctx)
	if err != nil {
		return nil, err
	}
	return s.SummarizeChannels(ctx, channels)
}

// ListChannelRows returns the stored channels without user counts.
func (s *chatService) ListChannelRows(ctx context.Context) ([]*domain.Channel, error) {
	channels, err := s.channels.List(ctx)
	if err != nil {
		return nil, storeError(err, "list_channels")
	}
	return channels, nil
}

// SummarizeChannels sweeps channel presence and attaches live user counts.
func (s *chatService) SummarizeChannels(ctx context.Context, channels []*domain.Channel) ([]domain.ChannelSummary, error) {
	now := s.presence.Now()
	if _, err := s.presence.Sweep(ctx, now); err != nil {
		s.logger.Warnw("presence sweep failed", "error", err)
	}

	out := make([]domain.ChannelSummary, 0, len(channels))
	for _, ch := range channels {
		n, err := s.presence.CountActive(ctx, ch.ID, now)
		if err != nil {
			return nil, apperrors.NewServiceUnavailableError("presence unavailable").WithContext("cause", err.Error())
		}
		out = append(out, domain.ChannelSummary{
			ID:        ch.ID,
			Name:      ch.Name,
			Icon:      ch.Icon,
			Desc:      ch.Description,
			UserCount: n,
		})
	}
	return out, nil
}

func (s *chatService) PostMessage(ctx context.Context, req ports.PostMessageRequest) (*domain.Message, error) {
	nick := strings.TrimSpace(req.Author.Nick)
	if err := validation.ValidateNick(nick); err != nil {
		return nil, apperrors.InvalidInput(err)
	}
	if err := validation.ValidateID(string(req.ChannelID), "channel id"); err != nil {
		return nil, apperrors.InvalidInput(err)
	}
	text := utils.SanitizeString(req.Text)
	if err := validation.ValidateMessageText(text); err != nil {
		return nil, apperrors.InvalidInput(err)
	}
	if text == "" && req.Attachment == nil {
		return nil, apperrors.InvalidInput(domain.ErrEmptyMessage)
	}

	s.heartbeat(ctx, req.Author, req.ChannelID)

	content, err := s.renderer.Render(text, req.Attachment)
	if err != nil {
		return nil, apperrors.InvalidInput(err)
	}

	origin := utils.FirstNonEmpty(req.OriginIP, "0.0.0.0")

	msg := &domain.Message{
		ID:        domain.MessageID(utils.NewMessageID()),
		ChannelID: req.ChannelID,
		Nick:      nick,
		Content:   content,
		OriginIP:  origin,
		Timestamp: s.now(),
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		return nil, storeError(err, "save_message")
	}

	s.metrics.MessagePosted(req.Attachment != nil)
	s.logger.Debugw("message posted",
		"channel_id", msg.ChannelID,
		"nick", nick,
		"preview", utils.TruncateRunes(text, 40),
	)
	return msg, nil
}

func (s *chatService) ListMessages(ctx context.Context, channelID domain.ChannelID, viewer *domain.Participant) ([]*domain.Message, error) {
	if err := validation.ValidateID(string(channelID), "channel id"); err != nil {
		return nil, apperrors.InvalidInput(err)
	}
	if viewer != nil {
		s.heartbeat(ctx, *viewer, channelID)
	}

	recent, err := s.messages.ListRecent(ctx, channelID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, storeError(err, "list_messages")
	}

	// newest first from the store, oldest first for display
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, id domain.MessageID) error {
	if err := validation.ValidateID(string(id), "message id"); err != nil {
		return apperrors.InvalidInput(err)
	}
	if err := s.messages.Delete(ctx, id); err != nil {
		return storeError(err, "delete_message")
	}
	return nil
}

// heartbeat records channel presence. Presence trouble never fails a chat request.
func (s *chatService) heartbeat(ctx context.Context, who domain.Participant, channelID domain.ChannelID) {
	if err := s.presence.Touch(ctx, who, channelID); err != nil {
		s.logger.Warnw("presence touch failed",
			"user_id", who.ID,
			"channel_id", channelID,
			"error", err,
		)
	}
}

// storeError maps repository errors onto application errors.
func storeError(err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrChannelNotFound):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, "channel not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrMessageNotFound):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, "message not found", http.StatusNotFound)
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.NewDatabaseError(fmt.Errorf("%s: %w", op, err), op)
	}
}
