package http

import (
	"errors"

	"huddle/internal/core/domain"
	apperrors "huddle/pkg/errors"
)

// voiceError maps voice service failures onto application errors. Bad input
// is the caller's fault; anything else is a backend failure.
func voiceError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrInvalidSignalType),
		errors.Is(err, domain.ErrMissingRecipient),
		errors.Is(err, domain.ErrEmptySignalPayload):
		return apperrors.InvalidInput(err)
	}
	return apperrors.NewSignalingError(err, "voice backend failure")
}
