package services

import (
	"time"

	"huddle/internal/core/ports"
)

type options struct {
	now    func() time.Time
	events ports.VoiceEventPublisher
}

type Option func(*options)

// WithClock replaces time.Now, mainly for tests that need to step past expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEventPublisher makes the voice service announce wake-ups and leaves to
// other instances.
func WithEventPublisher(p ports.VoiceEventPublisher) Option {
	return func(o *options) { o.events = p }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
