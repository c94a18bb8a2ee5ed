package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxNickLength        = 32
	MaxChannelNameLength = 50
	MaxIconLength        = 8
	MaxDescriptionLength = 200
	MaxMessageLength     = 2000
	MaxUserIDLength      = 128
	MaxIDLength          = 100
)

var (
	// IDRegex validates channel and message ids
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateNick validates a display nickname. '|' is reserved as the
// separator of origin-keyed user ids.
func ValidateNick(nick string) error {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return fmt.Errorf("nick is required")
	}
	if utf8.RuneCountInString(nick) > MaxNickLength {
		return fmt.Errorf("nick is too long (max %d characters)", MaxNickLength)
	}
	if !utf8.ValidString(nick) {
		return fmt.Errorf("nick contains invalid characters")
	}
	for _, r := range nick {
		if unicode.IsControl(r) || r == '|' {
			return fmt.Errorf("nick contains invalid characters")
		}
	}
	return nil
}

// ValidateUserID validates an opaque presence/mailbox key
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("user id is required")
	}
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user id is too long (max %d bytes)", MaxUserIDLength)
	}
	return nil
}

// ValidateID validates a channel or message id
func ValidateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, MaxIDLength)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

func ValidateChannelName(name string) error {
	if err := ValidateNonEmptyString(name, "channel name"); err != nil {
		return err
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("channel name contains invalid characters")
	}
	return ValidateStringLength(strings.TrimSpace(name), 1, MaxChannelNameLength, "channel name")
}

// ValidateChannelMeta validates the optional icon and description.
func ValidateChannelMeta(icon, desc string) error {
	if err := ValidateStringLength(icon, 0, MaxIconLength, "icon"); err != nil {
		return err
	}
	return ValidateStringLength(desc, 0, MaxDescriptionLength, "description")
}

func ValidateMessageText(text string) error {
	return ValidateStringLength(text, 0, MaxMessageLength, "message")
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length in runes
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
