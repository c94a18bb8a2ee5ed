package utils

import "time"

// FormatClock renders the short HH:MM form shown next to chat messages.
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}
