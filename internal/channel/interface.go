package channel

import (
	"context"
)

// Adapter is the behavioral contract every channel implementation satisfies,
// regardless of the underlying protocol (persistent socket, bot polling,
// webhook push, or server-push websocket).
type Adapter interface {
	// Type returns the channel provider type used for routing.
	Type() Type

	// AccountID returns the tenant/account discriminator this adapter serves.
	AccountID() string

	// Connect establishes or re-establishes the provider session. It only
	// initiates the attempt; terminal outcomes (connected / failed) are also
	// reported through a status event. For session-based channels it must be
	// safely re-entrant: a reconnect loop calling Connect repeatedly must not
	// leak resources or duplicate event subscriptions.
	Connect(ctx context.Context) error

	// Disconnect releases the provider session. Safe to call even if never
	// connected; always results in a status event with Connected=false.
	Disconnect(ctx context.Context) error

	// SendMessage delivers an outbound message and returns the
	// provider-assigned message id (empty when the provider does not assign
	// one, which is not a failure). It errors when not connected rather than
	// silently dropping.
	SendMessage(ctx context.Context, req *SendRequest) (string, error)

	// Status returns a synchronous snapshot. No I/O.
	Status() *Status
}

// Events is the sink adapters emit normalized events into. The manager passes
// itself as the sink so adapter events reach its subscribers unchanged.
type Events interface {
	EmitMessage(msg *Message)
	EmitStatus(status *Status)
	EmitContact(contact *Contact)
}
