// Package ws is the WebSocket transport: one persistent bidirectional
// connection per client, carrying named events as JSON envelopes.
package ws

import (
	"chat-relay/domain/event"
	"encoding/json"
)

// Envelope frames every event in both directions:
//
//	{"event": "send-message", "data": {"roomId": "r1", ...}}
type Envelope struct {
	Event event.Name      `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEvent wraps an outbound event in its envelope.
func EncodeEvent(e event.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.EventName(), Data: data})
}
