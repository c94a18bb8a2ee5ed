package domain

import "errors"

var (
	ErrInvalidNick        = errors.New("invalid nick")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidChannel     = errors.New("invalid channel")
	ErrInvalidSignalType  = errors.New("invalid signal type")
	ErrMissingRecipient   = errors.New("signal recipient is required")
	ErrEmptySignalPayload = errors.New("signal requires sdp or candidate")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrInvalidSession     = errors.New("invalid session token")
)
