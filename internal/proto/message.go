package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeSend   = "send"
	InboundTypeOpen   = "open"
	InboundTypeSignal = "signal"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// SendData asks the server to deliver a chat message.
type SendData struct {
	Receiver   int64  `json:"receiver"`
	Text       string `json:"text,omitempty"`
	Attachment string `json:"attachment,omitempty"`
}

// OpenData marks a conversation as read and requests its history.
type OpenData struct {
	Counterpart int64 `json:"counterpart"`
}

// SignalData is one call-setup hop addressed to another user.
type SignalData struct {
	Kind    string          `json:"kind"`
	Target  int64           `json:"target"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventPresence carries the IDs of all currently-online users.
type EventPresence struct {
	Online []int64 `json:"online"`
}

// EventMessage is a chat message as delivered to clients.
type EventMessage struct {
	ID         int64  `json:"id"`
	Sender     int64  `json:"sender"`
	Receiver   int64  `json:"receiver"`
	Text       string `json:"text,omitempty"`
	Attachment string `json:"attachment,omitempty"`
	Seen       bool   `json:"seen"`
	TS         int64  `json:"ts"`
}

// EventHistory delivers conversation history after an open request.
type EventHistory struct {
	Counterpart int64          `json:"counterpart"`
	Messages    []EventMessage `json:"messages"`
}

// EventSeen notifies a sender that their messages were read.
type EventSeen struct {
	SeenBy int64 `json:"seen_by"`
}

// EventSignal is a forwarded call-setup hop.
type EventSignal struct {
	Kind    string          `json:"kind"`
	From    int64           `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventSignalError reports an undeliverable call offer.
type EventSignalError struct {
	Reason string `json:"reason"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
