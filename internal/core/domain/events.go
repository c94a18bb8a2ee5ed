package domain

type VoiceEventKind string

const (
	VoiceEventSignalQueued VoiceEventKind = "voice.signal_queued"
	VoiceEventLeft         VoiceEventKind = "voice.left"
)

// VoiceEvent tells other instances sharing the mailbox backend that a push
// subscriber of UserID must wake up or disconnect.
type VoiceEvent struct {
	Kind   VoiceEventKind `json:"kind"`
	UserID UserID         `json:"user_id"`
}
