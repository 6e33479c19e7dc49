package core

import "github.com/google/uuid"

// Client is one live connection as seen by the core layer. The transport
// owns the socket; the core only ever writes to the Events channel.
type Client struct {
	UserID int64
	Name   string
	// ConnID distinguishes this connection from any later connection of
	// the same user, so a stale disconnect cannot evict its successor.
	ConnID string
	Events chan *Event
}

// NewClient constructs a client with a fresh connection ID and an
// initialized event channel.
func NewClient(userID int64, name string) *Client {
	return &Client{
		UserID: userID,
		Name:   name,
		ConnID: uuid.NewString(),
		Events: make(chan *Event, 32),
	}
}

// Deliver enqueues an event without blocking. Returns false when the
// client's buffer is full; the event is dropped in that case.
func (c *Client) Deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
