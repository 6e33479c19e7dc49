package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/airchat/airchat-server/internal/auth"
	"github.com/airchat/airchat-server/internal/config"
	"github.com/airchat/airchat-server/internal/core"
	"github.com/airchat/airchat-server/internal/proto"
	"github.com/airchat/airchat-server/internal/store"
	"github.com/airchat/airchat-server/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	auth *auth.Service
	st   store.Store
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "airchat-test",
		Audience: "airchat-test-clients",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, st, jwtConfig)

	registry := core.NewRegistry()
	core.NewPresence(registry, &logger)
	relay := core.NewRelay(st, registry, &logger)

	cfg := config.Default()
	cfg.Addr = ":0"
	server := NewServer(cfg, authService, registry, relay, st, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService, st: st}
}

// newUser creates an account directly through the auth service and returns
// its ID and a valid token.
func (e *testEnv) newUser(t *testing.T, email, fullName string) (int64, string) {
	t.Helper()

	user, token, err := e.auth.Signup(context.Background(), email, fullName, "password123")
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return user.ID, token
}

// dialWS opens an authenticated WebSocket connection.
func (e *testEnv) dialWS(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendInbound(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s data: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readUntil reads outbound frames until one matches the predicate.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(outboundFrame) bool) outboundFrame {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read outbound: %v", err)
		}
		if match(frame) {
			return frame
		}
	}
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	frame := readUntil(ctx, t, conn, func(f outboundFrame) bool {
		return f.Type == proto.OutboundTypeEvent && f.Event == event
	})
	return frame.Data
}
