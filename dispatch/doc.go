// Package dispatch classifies inbound texts and routes them to their
// handlers: structured peer envelopes, outbound "@agent" sends, "#registry"
// tool queries, local slash commands and plain conversational turns.
//
// Classification happens exactly once per inbound text (see Classify); every
// later branch switches on the resulting MessageKind instead of re-inspecting
// the raw string. Route converts any internal failure into an error reply,
// so callers always receive something to send back.
package dispatch
