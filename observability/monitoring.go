// Package observability exposes process-wide counters for the coordination
// layer. Best-effort paths (delivery/seen updates, sink backpressure drops)
// swallow their failures; these counters are the visible trace they leave.
package observability

import "sync/atomic"

type Stats struct {
	ConnectionsOpened      uint64 `json:"connections_opened"`
	ConnectionsClosed      uint64 `json:"connections_closed"`
	MessagesSent           uint64 `json:"messages_sent"`
	MessagesFailed         uint64 `json:"messages_failed"`
	DeliveredUpdateFailed  uint64 `json:"delivered_update_failed"`
	SeenUpdateFailed       uint64 `json:"seen_update_failed"`
	EventsDropped          uint64 `json:"events_dropped"`
	MalformedInboundEvents uint64 `json:"malformed_inbound_events"`
}

// Monitoring aggregates atomic counters. The zero value is not usable;
// construct it with NewMonitoring and share a single instance per process.
type Monitoring struct {
	connectionsOpened      atomic.Uint64
	connectionsClosed      atomic.Uint64
	messagesSent           atomic.Uint64
	messagesFailed         atomic.Uint64
	deliveredUpdateFailed  atomic.Uint64
	seenUpdateFailed       atomic.Uint64
	eventsDropped          atomic.Uint64
	malformedInboundEvents atomic.Uint64
}

func NewMonitoring() *Monitoring {
	return &Monitoring{}
}

func (m *Monitoring) IncrConnectionsOpened() { m.connectionsOpened.Add(1) }
func (m *Monitoring) IncrConnectionsClosed() { m.connectionsClosed.Add(1) }
func (m *Monitoring) IncrMessagesSent()      { m.messagesSent.Add(1) }
func (m *Monitoring) IncrMessagesFailed()    { m.messagesFailed.Add(1) }
func (m *Monitoring) IncrEventsDropped()     { m.eventsDropped.Add(1) }
func (m *Monitoring) IncrMalformedInbound()  { m.malformedInboundEvents.Add(1) }

// IncrFlagUpdateFailed records a swallowed delivery/seen update failure.
func (m *Monitoring) IncrFlagUpdateFailed(flag string) {
	switch flag {
	case "seen":
		m.seenUpdateFailed.Add(1)
	default:
		m.deliveredUpdateFailed.Add(1)
	}
}

// GetLatest returns a point-in-time copy of all counters.
func (m *Monitoring) GetLatest() Stats {
	return Stats{
		ConnectionsOpened:      m.connectionsOpened.Load(),
		ConnectionsClosed:      m.connectionsClosed.Load(),
		MessagesSent:           m.messagesSent.Load(),
		MessagesFailed:         m.messagesFailed.Load(),
		DeliveredUpdateFailed:  m.deliveredUpdateFailed.Load(),
		SeenUpdateFailed:       m.seenUpdateFailed.Load(),
		EventsDropped:          m.eventsDropped.Load(),
		MalformedInboundEvents: m.malformedInboundEvents.Load(),
	}
}
