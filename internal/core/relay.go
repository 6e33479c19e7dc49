package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/airchat/airchat-server/internal/store"
)

// Relay delivers messages and read receipts between pairs of users. It
// persists through the message store first and pushes to live connections
// second, so a push that races a disconnect loses nothing durable.
type Relay struct {
	store    store.MessageStore
	registry *Registry
	log      *zerolog.Logger
}

// NewRelay builds a message relay over the given store and registry.
func NewRelay(st store.MessageStore, registry *Registry, logger *zerolog.Logger) *Relay {
	return &Relay{
		store:    st,
		registry: registry,
		log:      logger,
	}
}

// Send validates and persists a message, then pushes it to the receiver's
// connection if one is registered. The persisted message is returned as
// the sender's acknowledgment.
//
// Persistence failure aborts the whole operation; the unread counter is
// bumped inside the same storage transaction as the insert, so no partial
// state survives. A failed push to an apparently-online receiver is
// swallowed: the message is already durable and will surface on the next
// history load.
func (r *Relay) Send(ctx context.Context, senderID, receiverID int64, text, attachment string) (*store.Message, error) {
	if text == "" && attachment == "" {
		return nil, coreError(ErrCodeInvalidMessage, "message needs text or an attachment")
	}

	msg, err := r.store.AppendMessage(ctx, senderID, receiverID, text, attachment)
	if err != nil {
		r.log.Error().Err(err).
			Int64("sender_id", senderID).
			Int64("receiver_id", receiverID).
			Msg("failed to persist message")
		return nil, coreError(ErrCodeStorageFailure, "failed to store message")
	}

	if receiver, ok := r.registry.Lookup(receiverID); ok {
		if !receiver.Deliver(&Event{Kind: EventNewMessage, Message: msg}) {
			r.log.Debug().
				Int64("receiver_id", receiverID).
				Int64("message_id", msg.ID).
				Msg("dropped message push for slow client")
		}
	}

	return msg, nil
}

// OpenConversation marks every message from counterpart to reader as seen,
// resets the reader's unread counter for that sender, and returns the full
// message history between the two, ascending by creation time. An online
// counterpart is notified that the reader has seen their messages.
func (r *Relay) OpenConversation(ctx context.Context, readerID, counterpartID int64) ([]*store.Message, error) {
	if _, err := r.store.MarkConversationSeen(ctx, readerID, counterpartID); err != nil {
		r.log.Error().Err(err).
			Int64("reader_id", readerID).
			Int64("counterpart_id", counterpartID).
			Msg("failed to mark conversation seen")
		return nil, coreError(ErrCodeStorageFailure, "failed to mark conversation seen")
	}

	history, err := r.store.History(ctx, readerID, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if counterpart, ok := r.registry.Lookup(counterpartID); ok {
		if !counterpart.Deliver(&Event{Kind: EventMessagesSeen, SeenBy: readerID}) {
			r.log.Debug().
				Int64("counterpart_id", counterpartID).
				Msg("dropped seen notice for slow client")
		}
	}

	return history, nil
}
