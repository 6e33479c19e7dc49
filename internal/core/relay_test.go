package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/airchat/airchat-server/internal/store"
	"github.com/airchat/airchat-server/internal/store/sqlite"
)

func newTestRelay(t *testing.T) (*Relay, *Registry, store.Store) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := NewRegistry()
	return NewRelay(st, reg, nopLogger()), reg, st
}

func TestSendRejectsEmptyContent(t *testing.T) {
	relay, _, _ := newTestRelay(t)

	_, err := relay.Send(context.Background(), 1, 2, "", "")
	coreErr, ok := err.(*CoreError)
	if !ok || coreErr.Code != ErrCodeInvalidMessage {
		t.Fatalf("expected invalid_message error, got %v", err)
	}
}

func TestSendToOfflineReceiverIsDurable(t *testing.T) {
	relay, _, st := newTestRelay(t)
	ctx := context.Background()

	msg, err := relay.Send(ctx, 1, 2, "hi", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID == 0 || msg.Seen {
		t.Fatalf("unexpected stored message: %+v", msg)
	}

	history, err := st.History(ctx, 2, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Text != "hi" {
		t.Fatalf("unexpected history: %+v", history)
	}

	counts, err := st.UnreadCounts(ctx, 2)
	if err != nil {
		t.Fatalf("unread counts: %v", err)
	}
	if counts[1] != 1 {
		t.Fatalf("expected 1 unread from user 1, got %v", counts)
	}
}

func TestSendPushesToOnlineReceiver(t *testing.T) {
	relay, reg, _ := newTestRelay(t)

	bob := NewClient(2, "bob")
	reg.Register(bob)

	msg, err := relay.Send(context.Background(), 1, 2, "", "attachment:ref")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	ev := mustEvent(t, bob.Events, EventNewMessage)
	if ev.Message.ID != msg.ID || ev.Message.Attachment != "attachment:ref" {
		t.Fatalf("unexpected pushed message: %+v", ev.Message)
	}
}

func TestOpenConversationMarksSeenAndNotifiesSender(t *testing.T) {
	relay, reg, st := newTestRelay(t)
	ctx := context.Background()

	// A sends "hi" to B while B is offline.
	if _, err := relay.Send(ctx, 1, 2, "hi", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	// A is online when B opens the conversation.
	alice := NewClient(1, "alice")
	reg.Register(alice)

	history, err := relay.OpenConversation(ctx, 2, 1)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	if len(history) != 1 || history[0].Text != "hi" || !history[0].Seen {
		t.Fatalf("unexpected history: %+v", history[0])
	}

	ev := mustEvent(t, alice.Events, EventMessagesSeen)
	if ev.SeenBy != 2 {
		t.Fatalf("expected seen notice from user 2, got %+v", ev)
	}

	counts, err := st.UnreadCounts(ctx, 2)
	if err != nil {
		t.Fatalf("unread counts: %v", err)
	}
	if counts[1] != 0 {
		t.Fatalf("expected unread counter reset, got %v", counts)
	}
}

func TestOpenConversationOfflineCounterpartNoNotice(t *testing.T) {
	relay, _, _ := newTestRelay(t)
	ctx := context.Background()

	if _, err := relay.Send(ctx, 1, 2, "hi", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	history, err := relay.OpenConversation(ctx, 2, 1)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("unexpected history length: %d", len(history))
	}
}

func TestHistoryAscendingAcrossDirections(t *testing.T) {
	relay, _, _ := newTestRelay(t)
	ctx := context.Background()

	if _, err := relay.Send(ctx, 1, 2, "first", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := relay.Send(ctx, 2, 1, "second", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := relay.Send(ctx, 1, 2, "third", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	history, err := relay.OpenConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(history) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(history))
	}
	for i, text := range want {
		if history[i].Text != text {
			t.Fatalf("expected %q at index %d, got %q", text, i, history[i].Text)
		}
	}
}

func TestSignalOfferToOfflineTargetBouncesUnreachable(t *testing.T) {
	relay, reg, _ := newTestRelay(t)

	alice := NewClient(1, "alice")
	reg.Register(alice)
	drain(alice.Events)

	err := relay.Signal(alice, &SignalEnvelope{
		Kind:    SignalOffer,
		Target:  2,
		Payload: json.RawMessage(`{"sdp":"v=0"}`),
	})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}

	ev := mustEvent(t, alice.Events, EventSignalError)
	if ev.Reason != "unreachable" {
		t.Fatalf("expected unreachable reason, got %q", ev.Reason)
	}
}

func TestSignalNonOfferToOfflineTargetDropsSilently(t *testing.T) {
	relay, reg, _ := newTestRelay(t)

	alice := NewClient(1, "alice")
	reg.Register(alice)
	drain(alice.Events)

	for _, kind := range []SignalKind{SignalAnswer, SignalICECandidate, SignalEnd, SignalDecline} {
		if err := relay.Signal(alice, &SignalEnvelope{Kind: kind, Target: 2}); err != nil {
			t.Fatalf("signal %s: %v", kind, err)
		}
	}
	mustNoEvent(t, alice.Events)
}

func TestSignalForwardsPayloadVerbatim(t *testing.T) {
	relay, reg, _ := newTestRelay(t)

	alice := NewClient(1, "alice")
	bob := NewClient(2, "bob")
	reg.Register(alice)
	reg.Register(bob)
	drain(bob.Events)

	payload := json.RawMessage(`{"candidate":"candidate:1 1 UDP 2122252543 192.0.2.1 54321 typ host"}`)
	err := relay.Signal(alice, &SignalEnvelope{
		Kind:    SignalICECandidate,
		Target:  2,
		Payload: payload,
	})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}

	ev := mustEvent(t, bob.Events, EventSignal)
	if ev.Signal.Kind != SignalICECandidate || ev.Signal.From != 1 {
		t.Fatalf("unexpected envelope: %+v", ev.Signal)
	}
	if string(ev.Signal.Payload) != string(payload) {
		t.Fatalf("payload altered in transit: %s", ev.Signal.Payload)
	}
	mustNoEvent(t, alice.Events)
}

func TestSignalSenderIdentityFromConnection(t *testing.T) {
	relay, reg, _ := newTestRelay(t)

	alice := NewClient(1, "alice")
	bob := NewClient(2, "bob")
	reg.Register(alice)
	reg.Register(bob)
	drain(bob.Events)

	// A forged From field is overwritten with the connection's identity.
	if err := relay.Signal(alice, &SignalEnvelope{Kind: SignalOffer, From: 99, Target: 2}); err != nil {
		t.Fatalf("signal: %v", err)
	}

	ev := mustEvent(t, bob.Events, EventSignal)
	if ev.Signal.From != 1 {
		t.Fatalf("expected sender identity 1, got %d", ev.Signal.From)
	}
}

func TestSignalUnknownKindRejected(t *testing.T) {
	relay, _, _ := newTestRelay(t)

	alice := NewClient(1, "alice")
	err := relay.Signal(alice, &SignalEnvelope{Kind: "ring", Target: 2})
	coreErr, ok := err.(*CoreError)
	if !ok || coreErr.Code != ErrCodeInvalidMessage {
		t.Fatalf("expected invalid_message error, got %v", err)
	}
}
