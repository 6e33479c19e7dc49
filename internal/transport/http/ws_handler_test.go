package http

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/airchat/airchat-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	env := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	if _, _, err := websocket.Dial(ctx, wsURL, nil); err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if _, _, err := websocket.Dial(ctx, wsURL+"?token=garbage", nil); err == nil {
		t.Fatal("expected dial with a bad token to fail")
	}
}

func TestPresenceBroadcastOnConnectAndDisconnect(t *testing.T) {
	env := startTestServer(t)

	aliceID, aliceToken := env.newUser(t, "alice@example.com", "Alice")
	bobID, bobToken := env.newUser(t, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dialWS(ctx, t, aliceToken)

	var presence proto.EventPresence
	if err := json.Unmarshal(readEvent(ctx, t, connA, "presence"), &presence); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	if len(presence.Online) != 1 || presence.Online[0] != aliceID {
		t.Fatalf("unexpected online set: %v", presence.Online)
	}

	connB := env.dialWS(ctx, t, bobToken)

	// Alice eventually observes both users online.
	readUntil(ctx, t, connA, func(f outboundFrame) bool {
		if f.Event != "presence" {
			return false
		}
		var p proto.EventPresence
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return false
		}
		return len(p.Online) == 2 && p.Online[0] == aliceID && p.Online[1] == bobID
	})

	connB.Close(websocket.StatusNormalClosure, "bye")

	// And then only herself once Bob's disconnect lands.
	readUntil(ctx, t, connA, func(f outboundFrame) bool {
		if f.Event != "presence" {
			return false
		}
		var p proto.EventPresence
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return false
		}
		return len(p.Online) == 1 && p.Online[0] == aliceID
	})
}

func TestSendDeliversToReceiverAndAcksSender(t *testing.T) {
	env := startTestServer(t)

	aliceID, aliceToken := env.newUser(t, "alice@example.com", "Alice")
	bobID, bobToken := env.newUser(t, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dialWS(ctx, t, aliceToken)
	connB := env.dialWS(ctx, t, bobToken)

	sendInbound(ctx, t, connA, proto.InboundTypeSend, proto.SendData{Receiver: bobID, Text: "hi there"})

	var ack proto.EventMessage
	if err := json.Unmarshal(readEvent(ctx, t, connA, "sent"), &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.ID == 0 || ack.Sender != aliceID || ack.Text != "hi there" || ack.Seen {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	var delivered proto.EventMessage
	if err := json.Unmarshal(readEvent(ctx, t, connB, "message"), &delivered); err != nil {
		t.Fatalf("unmarshal delivered: %v", err)
	}
	if delivered.ID != ack.ID || delivered.Sender != aliceID || delivered.Receiver != bobID {
		t.Fatalf("unexpected delivered message: %+v", delivered)
	}
}

func TestSendEmptyContentReturnsProtocolError(t *testing.T) {
	env := startTestServer(t)

	_, aliceToken := env.newUser(t, "alice@example.com", "Alice")
	bobID, _ := env.newUser(t, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dialWS(ctx, t, aliceToken)
	sendInbound(ctx, t, connA, proto.InboundTypeSend, proto.SendData{Receiver: bobID})

	frame := readUntil(ctx, t, connA, func(f outboundFrame) bool {
		return f.Type == proto.OutboundTypeError
	})
	if frame.Error == nil || frame.Error.Code != "invalid_message" {
		t.Fatalf("expected invalid_message error, got %+v", frame.Error)
	}
}

func TestOpenConversationOverWebSocket(t *testing.T) {
	env := startTestServer(t)

	aliceID, aliceToken := env.newUser(t, "alice@example.com", "Alice")
	bobID, bobToken := env.newUser(t, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Alice messages Bob while he is offline.
	connA := env.dialWS(ctx, t, aliceToken)
	sendInbound(ctx, t, connA, proto.InboundTypeSend, proto.SendData{Receiver: bobID, Text: "hi"})
	readEvent(ctx, t, connA, "sent")

	// Bob comes online and opens the conversation.
	connB := env.dialWS(ctx, t, bobToken)
	sendInbound(ctx, t, connB, proto.InboundTypeOpen, proto.OpenData{Counterpart: aliceID})

	var history proto.EventHistory
	if err := json.Unmarshal(readEvent(ctx, t, connB, "history"), &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if history.Counterpart != aliceID || len(history.Messages) != 1 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history.Messages[0].Text != "hi" || !history.Messages[0].Seen {
		t.Fatalf("message should be returned seen: %+v", history.Messages[0])
	}

	// Alice gets the read receipt.
	var seen proto.EventSeen
	if err := json.Unmarshal(readEvent(ctx, t, connA, "seen"), &seen); err != nil {
		t.Fatalf("unmarshal seen: %v", err)
	}
	if seen.SeenBy != bobID {
		t.Fatalf("expected seen_by %d, got %+v", bobID, seen)
	}
}

func TestSignalForwardedVerbatim(t *testing.T) {
	env := startTestServer(t)

	aliceID, aliceToken := env.newUser(t, "alice@example.com", "Alice")
	bobID, bobToken := env.newUser(t, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dialWS(ctx, t, aliceToken)
	connB := env.dialWS(ctx, t, bobToken)

	payload := json.RawMessage(`{"candidate":"candidate:0 1 UDP 2122194687 198.51.100.7 49203 typ host"}`)
	sendInbound(ctx, t, connA, proto.InboundTypeSignal, proto.SignalData{
		Kind:    "ice-candidate",
		Target:  bobID,
		Payload: payload,
	})

	var signal proto.EventSignal
	if err := json.Unmarshal(readEvent(ctx, t, connB, "signal"), &signal); err != nil {
		t.Fatalf("unmarshal signal: %v", err)
	}
	if signal.Kind != "ice-candidate" || signal.From != aliceID {
		t.Fatalf("unexpected signal: %+v", signal)
	}
	if string(signal.Payload) != string(payload) {
		t.Fatalf("payload altered in transit: %s", signal.Payload)
	}
}

func TestOfferToOfflineUserBouncesUnreachable(t *testing.T) {
	env := startTestServer(t)

	_, aliceToken := env.newUser(t, "alice@example.com", "Alice")
	bobID, _ := env.newUser(t, "bob@example.com", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dialWS(ctx, t, aliceToken)
	sendInbound(ctx, t, connA, proto.InboundTypeSignal, proto.SignalData{
		Kind:    "offer",
		Target:  bobID,
		Payload: json.RawMessage(`{"sdp":"v=0"}`),
	})

	var sigErr proto.EventSignalError
	if err := json.Unmarshal(readEvent(ctx, t, connA, "signal_error"), &sigErr); err != nil {
		t.Fatalf("unmarshal signal_error: %v", err)
	}
	if sigErr.Reason != "unreachable" {
		t.Fatalf("expected unreachable, got %+v", sigErr)
	}
}

func TestSecondConnectionSupersedesFirst(t *testing.T) {
	env := startTestServer(t)

	bobID, bobToken := env.newUser(t, "bob@example.com", "Bob")
	_, aliceToken := env.newUser(t, "alice@example.com", "Alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := env.dialWS(ctx, t, bobToken)
	second := env.dialWS(ctx, t, bobToken)
	_ = first

	connA := env.dialWS(ctx, t, aliceToken)
	sendInbound(ctx, t, connA, proto.InboundTypeSend, proto.SendData{Receiver: bobID, Text: "to the new connection"})

	// Only the superseding connection receives the push.
	var delivered proto.EventMessage
	if err := json.Unmarshal(readEvent(ctx, t, second, "message"), &delivered); err != nil {
		t.Fatalf("unmarshal delivered: %v", err)
	}
	if delivered.Text != "to the new connection" {
		t.Fatalf("unexpected message: %+v", delivered)
	}
}
