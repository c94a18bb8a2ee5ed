package domain

import "time"

type UserID string

// VoiceRoom is the single global room voice participants are tracked in.
const VoiceRoom ChannelID = "voice"

// Participant is a resolved caller identity. ID is the presence/mailbox key,
// Nick is only for display.
type Participant struct {
	ID   UserID `json:"id"`
	Nick string `json:"nick"`
}

type PresenceEntry struct {
	UserID    UserID
	Nick      string
	ChannelID ChannelID
	LastSeen  time.Time
}

// ActiveAt reports whether the entry was seen strictly after now-ttl.
func (e PresenceEntry) ActiveAt(now time.Time, ttl time.Duration) bool {
	return e.LastSeen.After(now.Add(-ttl))
}

func (e PresenceEntry) Participant() Participant {
	return Participant{ID: e.UserID, Nick: e.Nick}
}
