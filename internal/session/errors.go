package session

import (
	"errors"

	"aim-chat/securecore/internal/codec"
	"aim-chat/securecore/internal/crypto"
)

var (
	ErrMessageExpired    = errors.New("message expired")
	ErrEmptyPlaintext    = errors.New("plaintext is empty")
	ErrInvalidExpiration = errors.New("invalid expiration")
	ErrNotInitialized    = errors.New("session not initialized")
	ErrClosed            = errors.New("session closed")

	// ErrUnableToRead is the only failure shown to users for an incoming message.
	ErrUnableToRead = errors.New("unable to read message")
)

// Unreadable reports whether err means the message cannot be shown, for any
// reason the user should not be able to tell apart.
func Unreadable(err error) bool {
	return errors.Is(err, crypto.ErrAuthenticationFailed) ||
		errors.Is(err, ErrMessageExpired) ||
		errors.Is(err, codec.ErrMalformedEnvelope) ||
		errors.Is(err, codec.ErrTombstoned)
}

// PublicError collapses unreadable-message errors into ErrUnableToRead and
// passes every other error through.
func PublicError(err error) error {
	if Unreadable(err) {
		return ErrUnableToRead
	}
	return err
}
