package backup

import (
	"time"

	"huddle/internal/core/domain"
)

const (
	sectionChannels = "channels"
	sectionMessages = "messages"
)

type channelRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	Description string    `json:"desc"`
	CreatedAt   time.Time `json:"created_at"`
}

type messageRecord struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Nick      string    `json:"nick"`
	Content   string    `json:"content"`
	OriginIP  string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

func toChannelRecord(c *domain.Channel) channelRecord {
	return channelRecord{
		ID:          string(c.ID),
		Name:        c.Name,
		Icon:        c.Icon,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

func (r channelRecord) toDomain() *domain.Channel {
	return &domain.Channel{
		ID:          domain.ChannelID(r.ID),
		Name:        r.Name,
		Icon:        r.Icon,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

func toMessageRecord(m *domain.Message) messageRecord {
	return messageRecord{
		ID:        string(m.ID),
		ChannelID: string(m.ChannelID),
		Nick:      m.Nick,
		Content:   m.Content,
		OriginIP:  m.OriginIP,
		Timestamp: m.Timestamp,
	}
}

func (r messageRecord) toDomain() *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(r.ID),
		ChannelID: domain.ChannelID(r.ChannelID),
		Nick:      r.Nick,
		Content:   r.Content,
		OriginIP:  r.OriginIP,
		Timestamp: r.Timestamp,
	}
}
