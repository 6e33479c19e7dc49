package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	Avatar       string // profile picture reference, empty if unset
	CreatedAt    time.Time
}

// Message represents a persisted direct message between two users.
// Either Text or Attachment (or both) is set.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Text       string
	Attachment string // opaque attachment reference supplied by the client
	Seen       bool
	CreatedAt  time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, email, fullName, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateProfile updates mutable profile fields. Empty values are left unchanged.
	UpdateProfile(ctx context.Context, id int64, fullName, avatar string) (*User, error)

	// DeleteUser removes the account record.
	DeleteUser(ctx context.Context, id int64) error

	// ListUsersExcept lists all users except the given one, ordered by full name.
	ListUsersExcept(ctx context.Context, id int64) ([]*User, error)
}

// MessageStore handles message and unread-counter persistence.
//
// Implementations must apply each call atomically: AppendMessage bumps the
// recipient's unread counter in the same transaction as the insert, and
// MarkConversationSeen flips seen flags and resets the counter together.
// Callers treat every operation as a single step that fully succeeds or
// fully fails.
type MessageStore interface {
	// AppendMessage persists a message with seen=false, assigns its ID and
	// timestamp, and increments the unread counter for (receiver, sender).
	AppendMessage(ctx context.Context, senderID, receiverID int64, text, attachment string) (*Message, error)

	// MarkConversationSeen marks every unseen message from counterpart to
	// reader as seen and zeroes the unread counter for (reader, counterpart).
	// Idempotent. Returns the number of messages newly marked.
	MarkConversationSeen(ctx context.Context, readerID, counterpartID int64) (int64, error)

	// History returns all messages exchanged between two users, ascending
	// by creation time.
	History(ctx context.Context, userA, userB int64) ([]*Message, error)

	// UnreadCounts returns, per sender, how many unseen messages the
	// recipient has from that sender. Senders with a zero count are omitted.
	UnreadCounts(ctx context.Context, recipientID int64) (map[int64]int64, error)

	// DeleteConversation removes all messages between two users, in both
	// directions, along with their unread counters.
	DeleteConversation(ctx context.Context, userA, userB int64) error

	// DeleteAllForUser removes every message and unread counter involving
	// the user.
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
