package channel

import "errors"

var (
	// ErrChannelNotFound is returned when an operation references a
	// (type, accountID) pair that was never registered.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrChannelExists is returned when registering a second channel with the
	// same (type, accountID) composite key.
	ErrChannelExists = errors.New("channel already registered")

	// ErrInvalidConfig is returned when a channel config is missing required
	// credentials. Validation happens before any adapter is constructed.
	ErrInvalidConfig = errors.New("invalid channel config")

	// ErrNotConnected is returned by send operations on a channel without an
	// active provider session.
	ErrNotConnected = errors.New("channel not connected")

	// ErrEmptyMessage is returned when a send request carries neither text
	// nor media.
	ErrEmptyMessage = errors.New("message requires text or media")
)
