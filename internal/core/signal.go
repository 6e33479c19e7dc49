package core

import "encoding/json"

// SignalKind is one of the call-setup message kinds the relay forwards.
type SignalKind string

const (
	// SignalOffer opens a call attempt with a session description.
	SignalOffer SignalKind = "offer"
	// SignalAnswer responds to an offer with a session description.
	SignalAnswer SignalKind = "answer"
	// SignalICECandidate carries one ICE candidate descriptor.
	SignalICECandidate SignalKind = "ice-candidate"
	// SignalEnd terminates an established call.
	SignalEnd SignalKind = "end"
	// SignalDecline rejects an incoming offer.
	SignalDecline SignalKind = "decline"
)

// SignalEnvelope is one hop of the call-setup handshake. It is never
// persisted; the payload is forwarded byte-for-byte and discarded.
type SignalEnvelope struct {
	Kind    SignalKind
	From    int64
	Target  int64
	Payload json.RawMessage
}

func validSignalKind(kind SignalKind) bool {
	switch kind {
	case SignalOffer, SignalAnswer, SignalICECandidate, SignalEnd, SignalDecline:
		return true
	}
	return false
}

// Signal forwards a call-setup envelope from the given client to its
// target. The relay keeps no call state and performs no handshake
// validation; its only job is faithful point-to-point delivery.
//
// An offer to an offline target bounces an unreachable notice back to the
// initiator. Every other kind degrades silently on a lookup miss, since
// the clients already hold the state needed to recover. An unknown kind
// is rejected so transports can answer with a protocol error.
func (r *Relay) Signal(from *Client, env *SignalEnvelope) error {
	if !validSignalKind(env.Kind) {
		return coreError(ErrCodeInvalidMessage, "unknown signal kind")
	}

	// The sender identity comes from the connection, never the payload.
	env.From = from.UserID

	target, ok := r.registry.Lookup(env.Target)
	if !ok {
		if env.Kind == SignalOffer {
			from.Deliver(&Event{Kind: EventSignalError, Reason: "unreachable"})
		}
		r.log.Debug().
			Str("kind", string(env.Kind)).
			Int64("from", env.From).
			Int64("target", env.Target).
			Msg("signal target offline")
		return nil
	}

	if !target.Deliver(&Event{Kind: EventSignal, Signal: env}) {
		r.log.Debug().
			Str("kind", string(env.Kind)).
			Int64("target", env.Target).
			Msg("dropped signal for slow client")
	}
	return nil
}
