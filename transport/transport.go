// Package transport moves messages between agents over HTTP.
//
// A Client posts envelopes to a peer's /a2a endpoint and returns the peer's
// textual reply. A Server exposes the same endpoint for inbound traffic,
// plus a health probe, and hands every decoded message to a RouteFunc. Both
// sides speak the same minimal JSON shape, so any two bridges can talk to
// each other without negotiation.
package transport

// message is the JSON body exchanged on the /a2a endpoint.
type message struct {
	Content        content `json:"content"`
	Role           string  `json:"role,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
}

// content wraps the textual payload.
type content struct {
	Text string `json:"text"`
}
