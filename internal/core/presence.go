package core

import "github.com/rs/zerolog"

// Presence publishes the online-user set to every connected client
// whenever the registry changes. Delivery is best effort: a push that
// fails because a connection closed or stalled mid-broadcast is dropped,
// since the disconnect itself triggers the next broadcast.
type Presence struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewPresence builds the broadcaster and hooks it into the registry.
func NewPresence(registry *Registry, logger *zerolog.Logger) *Presence {
	p := &Presence{
		registry: registry,
		log:      logger,
	}
	registry.OnChange(p.Broadcast)
	return p
}

// Broadcast pushes the current presence snapshot to all connections.
// The registry lock is not held while writing to clients.
func (p *Presence) Broadcast() {
	online, clients := p.registry.Snapshot()

	ev := &Event{Kind: EventPresence, Online: online}
	for _, c := range clients {
		if !c.Deliver(ev) {
			p.log.Debug().
				Int64("user_id", c.UserID).
				Str("conn_id", c.ConnID).
				Msg("dropped presence event for slow client")
		}
	}
}
