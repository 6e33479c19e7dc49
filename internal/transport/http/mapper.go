package http

import (
	"github.com/airchat/airchat-server/internal/core"
	"github.com/airchat/airchat-server/internal/proto"
	"github.com/airchat/airchat-server/internal/store"
)

func messageJSON(m *store.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:         m.ID,
		Sender:     m.SenderID,
		Receiver:   m.ReceiverID,
		Text:       m.Text,
		Attachment: m.Attachment,
		Seen:       m.Seen,
		TS:         m.CreatedAt.Unix(),
	}
}

func historyJSON(counterpartID int64, history []*store.Message) proto.EventHistory {
	messages := make([]proto.EventMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, messageJSON(msg))
	}
	return proto.EventHistory{
		Counterpart: counterpartID,
		Messages:    messages,
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventPresence:
		online := event.Online
		if online == nil {
			online = []int64{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "presence",
			Data:  proto.EventPresence{Online: online},
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "message",
			Data:  messageJSON(event.Message),
		}
	case core.EventMessagesSeen:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "seen",
			Data:  proto.EventSeen{SeenBy: event.SeenBy},
		}
	case core.EventSignal:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "signal",
			Data: proto.EventSignal{
				Kind:    string(event.Signal.Kind),
				From:    event.Signal.From,
				Payload: event.Signal.Payload,
			},
		}
	case core.EventSent:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "sent",
			Data:  messageJSON(event.Message),
		}
	case core.EventHistory:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "history",
			Data:  historyJSON(event.Counterpart, event.History),
		}
	case core.EventSignalError:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "signal_error",
			Data:  proto.EventSignalError{Reason: event.Reason},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func protoError(err error) *proto.Error {
	if coreErr, ok := err.(*core.CoreError); ok {
		return &proto.Error{Code: coreErr.Code, Msg: coreErr.Message}
	}
	return &proto.Error{Code: core.ErrCodeStorageFailure, Msg: "internal error"}
}
