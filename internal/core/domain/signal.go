package domain

import (
	"strings"
	"time"

	"github.com/pion/webrtc/v3"
)

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// ParseSignalType accepts the WebRTC description types offer and answer
// plus candidate for trickled ICE.
func ParseSignalType(s string) (SignalType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == string(SignalCandidate) {
		return SignalCandidate, nil
	}
	switch webrtc.NewSDPType(s) {
	case webrtc.SDPTypeOffer:
		return SignalOffer, nil
	case webrtc.SDPTypeAnswer:
		return SignalAnswer, nil
	}
	return "", ErrInvalidSignalType
}

// SignalMessage is an opaque signaling blob queued for To.
// SDP and Candidate are never parsed; a nil pointer means the field was absent.
type SignalMessage struct {
	From       UserID     `json:"from"`
	To         UserID     `json:"-"`
	Type       SignalType `json:"type"`
	SDP        *string    `json:"sdp"`
	Candidate  *string    `json:"candidate"`
	ReceivedAt time.Time  `json:"-"`
}

// Validate checks the fields every signal needs before it may be queued.
func (m SignalMessage) Validate() error {
	if m.From == "" {
		return ErrInvalidUserID
	}
	if m.To == "" {
		return ErrMissingRecipient
	}
	switch m.Type {
	case SignalOffer, SignalAnswer:
		if m.SDP == nil {
			return ErrEmptySignalPayload
		}
	case SignalCandidate:
		if m.Candidate == nil {
			return ErrEmptySignalPayload
		}
	default:
		return ErrInvalidSignalType
	}
	return nil
}

// OptionalString maps an empty form value to an absent field.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
