package domain

import (
	"path"
	"strings"
	"time"
)

type ChannelID string
type MessageID string

// DefaultChannelIcon is used when a channel is created without an icon.
const DefaultChannelIcon = "💬"

type Channel struct {
	ID          ChannelID
	Name        string
	Icon        string
	Description string
	CreatedAt   time.Time
}

// ChannelSummary is the channel list view: a channel plus its live user count.
type ChannelSummary struct {
	ID        ChannelID `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Desc      string    `json:"desc"`
	UserCount int       `json:"userCount"`
}

type Message struct {
	ID        MessageID
	ChannelID ChannelID
	Nick      string
	Content   string // rendered HTML, never raw user text
	OriginIP  string
	Timestamp time.Time
}

// Attachment is an uploaded file already persisted by the media store.
type Attachment struct {
	Name string
	URL  string
	Size int64
}

type MediaKind int

const (
	MediaLink MediaKind = iota
	MediaImage
	MediaVideo
	MediaAudio
)

var mediaKinds = map[string]MediaKind{
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".png":  MediaImage,
	".gif":  MediaImage,
	".webp": MediaImage,
	".mp4":  MediaVideo,
	".webm": MediaVideo,
	".mp3":  MediaAudio,
	".wav":  MediaAudio,
	".ogg":  MediaAudio,
}

// MediaKindOf classifies a file by extension. Anything unknown is a link.
func MediaKindOf(name string) MediaKind {
	return mediaKinds[strings.ToLower(path.Ext(name))]
}
