package bus

import "time"

// Event represents a domain event published on the bus.
// Kinds are dot-separated, namespace first: chat.created, message.received,
// transport.message, session.status_changed.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef is the payload of message.* events.
type MessageRef struct {
	ChatID    string
	MessageID int64
}
