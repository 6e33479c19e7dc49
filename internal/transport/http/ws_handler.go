package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/airchat/airchat-server/internal/auth"
	"github.com/airchat/airchat-server/internal/core"
	"github.com/airchat/airchat-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
// The connection's user identity is bound at upgrade time from a JWT, so
// every inbound frame is attributed to that identity.
type WSHandler struct {
	authService *auth.Service
	registry    *core.Registry
	relay       *core.Relay
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(authService *auth.Service, registry *core.Registry, relay *core.Relay, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		authService: authService,
		registry:    registry,
		relay:       relay,
		log:         logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	claims, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth failed")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(claims.UserID, claims.FullName)
	h.registry.Register(client)
	// Deregister with our own handle exactly once; if a newer connection
	// for this user has superseded us, the registry ignores the call.
	defer h.registry.Deregister(client)

	h.log.Info().
		Int64("user_id", client.UserID).
		Str("conn_id", client.ConnID).
		Msg("ws client connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Int64("user_id", client.UserID).Msg("ws connection closed with error")
		}
	}

	h.log.Info().
		Int64("user_id", client.UserID).
		Str("conn_id", client.ConnID).
		Msg("ws client disconnected")

	conn.Close(status, reason)
}

// authenticate resolves the connection identity from a token query
// parameter (browsers cannot set headers on WebSocket dials) or a Bearer
// header.
func (h *WSHandler) authenticate(r *stdhttp.Request) (*auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = after
		}
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return h.authService.ValidateToken(token)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		h.handleInbound(ctx, client, inbound)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Int64("user_id", client.UserID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleInbound dispatches one client frame. Replies and errors go through
// the client's event channel so the write loop stays the only socket
// writer.
func (h *WSHandler) handleInbound(ctx context.Context, client *core.Client, inbound proto.Inbound) {
	fail := func(err *proto.Error) {
		client.Deliver(&core.Event{
			Kind:  core.EventError,
			Error: &core.CoreError{Code: err.Code, Message: err.Msg},
		})
	}

	switch inbound.Type {
	case proto.InboundTypeSend:
		var send proto.SendData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			fail(&proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed send data"})
			return
		}
		if send.Receiver <= 0 {
			fail(&proto.Error{Code: core.ErrCodeBadRequest, Msg: "receiver is required"})
			return
		}

		msg, err := h.relay.Send(ctx, client.UserID, send.Receiver, send.Text, send.Attachment)
		if err != nil {
			fail(protoError(err))
			return
		}
		client.Deliver(&core.Event{Kind: core.EventSent, Message: msg})

	case proto.InboundTypeOpen:
		var open proto.OpenData
		if err := json.Unmarshal(inbound.Data, &open); err != nil {
			fail(&proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed open data"})
			return
		}
		if open.Counterpart <= 0 {
			fail(&proto.Error{Code: core.ErrCodeBadRequest, Msg: "counterpart is required"})
			return
		}

		history, err := h.relay.OpenConversation(ctx, client.UserID, open.Counterpart)
		if err != nil {
			fail(protoError(err))
			return
		}
		client.Deliver(&core.Event{
			Kind:        core.EventHistory,
			Counterpart: open.Counterpart,
			History:     history,
		})

	case proto.InboundTypeSignal:
		var signal proto.SignalData
		if err := json.Unmarshal(inbound.Data, &signal); err != nil {
			fail(&proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed signal data"})
			return
		}
		if signal.Target <= 0 {
			fail(&proto.Error{Code: core.ErrCodeBadRequest, Msg: "target is required"})
			return
		}

		err := h.relay.Signal(client, &core.SignalEnvelope{
			Kind:    core.SignalKind(signal.Kind),
			Target:  signal.Target,
			Payload: signal.Payload,
		})
		if err != nil {
			fail(protoError(err))
		}

	default:
		fail(&proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"})
	}
}
