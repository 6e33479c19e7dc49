package core

import "github.com/airchat/airchat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence carries the current set of online user IDs.
	EventPresence EventKind = iota
	// EventNewMessage delivers a chat message to its recipient.
	EventNewMessage
	// EventMessagesSeen tells a sender that their messages were read.
	EventMessagesSeen
	// EventSignal forwards one hop of a call-setup handshake.
	EventSignal
	// EventSignalError tells an initiator that a signal could not be delivered.
	EventSignalError
	// EventSent acknowledges a client's own send with the stored message.
	EventSent
	// EventHistory delivers conversation history after an open request.
	EventHistory
	// EventError notifies clients about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind        EventKind
	Online      []int64          // for EventPresence
	Message     *store.Message   // for EventNewMessage and EventSent
	SeenBy      int64            // for EventMessagesSeen
	Signal      *SignalEnvelope  // for EventSignal
	Reason      string           // for EventSignalError
	Counterpart int64            // for EventHistory
	History     []*store.Message // for EventHistory
	Error       *CoreError       // for EventError
}
