package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewChannelID returns a random channel id.
func NewChannelID() string {
	return "ch_" + uuid.NewString()
}

func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// NewUserID returns the opaque id placed in session tokens.
func NewUserID() string {
	return "u_" + uuid.NewString()
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
