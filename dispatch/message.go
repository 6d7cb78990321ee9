package dispatch

import (
	"fmt"
	"strings"
)

// MessageKind identifies how an inbound text is handled. Classification is
// decided once, in Classify; downstream code branches on the kind only.
type MessageKind int

const (
	// KindChat is a plain conversational turn for the local agent logic.
	KindChat MessageKind = iota

	// KindEnvelope is a structured peer message (FROM / TO / MESSAGE lines).
	KindEnvelope

	// KindOutbound is a user request to message another agent ("@agent_id ...").
	KindOutbound

	// KindToolQuery is a tool server query ("#registry:server-name ...").
	KindToolQuery

	// KindCommand is a local slash command ("/help", "/ping", ...).
	KindCommand
)

// String returns the lowercase kind name for logging.
func (k MessageKind) String() string {
	switch k {
	case KindEnvelope:
		return "envelope"
	case KindOutbound:
		return "outbound"
	case KindToolQuery:
		return "tool_query"
	case KindCommand:
		return "command"
	default:
		return "chat"
	}
}

// replyMarker starts every automatic answer body so the receiving side can
// tell replies from fresh messages and break request/response loops.
const replyMarker = "Response to "

// Envelope is the structured wire form of a peer message. Reply is derived
// once at parse time from the body's leading marker.
type Envelope struct {
	// From is the sender's agent ID.
	From string

	// To is the destination agent ID.
	To string

	// Body is the message content.
	Body string

	// Reply reports whether Body carries the reply marker, meaning this
	// envelope answers an earlier message and must not trigger agent logic.
	Reply bool
}

// ParseEnvelope extracts an Envelope from text. The text qualifies when all
// three field markers appear; fields are matched per line in any order, with
// surrounding whitespace trimmed. Missing lines leave fields empty.
func ParseEnvelope(text string) (*Envelope, bool) {
	if !strings.Contains(text, "FROM:") || !strings.Contains(text, "TO:") || !strings.Contains(text, "MESSAGE:") {
		return nil, false
	}

	env := &Envelope{}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "FROM:"):
			env.From = strings.TrimSpace(strings.TrimPrefix(line, "FROM:"))
		case strings.HasPrefix(line, "TO:"):
			env.To = strings.TrimSpace(strings.TrimPrefix(line, "TO:"))
		case strings.HasPrefix(line, "MESSAGE:"):
			env.Body = strings.TrimSpace(strings.TrimPrefix(line, "MESSAGE:"))
		}
	}

	env.Reply = strings.HasPrefix(env.Body, replyMarker)

	return env, true
}

// Render produces the wire form of the envelope.
func (e *Envelope) Render() string {
	return fmt.Sprintf("FROM: %s\nTO: %s\nMESSAGE: %s", e.From, e.To, e.Body)
}

// NewReplyBody builds the marker-prefixed body answering the named sender.
func NewReplyBody(sender, result string) string {
	return fmt.Sprintf("%s%s: %s", replyMarker, sender, result)
}

// StripReplyBody removes the reply marker addressed to selfID from body.
// Bodies carrying a marker for a different agent are returned unchanged.
func StripReplyBody(body, selfID string) string {
	return strings.TrimPrefix(body, replyMarker+selfID+": ")
}

// Message is the classified form of an inbound text.
type Message struct {
	// Kind selects the handling path.
	Kind MessageKind

	// Envelope is set for KindEnvelope.
	Envelope *Envelope

	// Target is the destination agent ID for KindOutbound.
	Target string

	// Provider and Server name the registry and tool server for
	// KindToolQuery. An empty Provider marks a query without the
	// "registry:server" separator.
	Provider string
	Server   string

	// Command is the lowercased verb for KindCommand, without the slash.
	Command string

	// Args carries the remainder: outbound body, tool query text or
	// command arguments.
	Args string

	// Text is the trimmed raw input.
	Text string
}

// Classify decides the handling path for an inbound text. Precedence:
// envelope fields win over everything, then the "@", "#" and "/" sigils,
// then plain chat.
func Classify(text string) Message {
	text = strings.TrimSpace(text)

	if env, ok := ParseEnvelope(text); ok {
		return Message{Kind: KindEnvelope, Envelope: env, Text: text}
	}

	switch {
	case strings.HasPrefix(text, "@"):
		return classifyOutbound(text)
	case strings.HasPrefix(text, "#"):
		return classifyToolQuery(text)
	case strings.HasPrefix(text, "/"):
		return classifyCommand(text)
	}

	return Message{Kind: KindChat, Text: text}
}

func classifyOutbound(text string) Message {
	rest := text[1:]

	target, body, found := strings.Cut(rest, " ")
	if !found {
		// No space after the target: the router reports the format error
		return Message{Kind: KindOutbound, Target: target, Text: text}
	}

	return Message{Kind: KindOutbound, Target: target, Args: body, Text: text}
}

func classifyToolQuery(text string) Message {
	rest := text[1:]

	head, query, _ := strings.Cut(rest, " ")

	provider, server, found := strings.Cut(head, ":")
	if !found {
		// Missing "registry:server" separator; Provider stays empty
		return Message{Kind: KindToolQuery, Server: head, Args: strings.TrimSpace(query), Text: text}
	}

	return Message{
		Kind:     KindToolQuery,
		Provider: provider,
		Server:   server,
		Args:     strings.TrimSpace(query),
		Text:     text,
	}
}

func classifyCommand(text string) Message {
	verb, args, _ := strings.Cut(text[1:], " ")

	return Message{
		Kind:    KindCommand,
		Command: strings.ToLower(verb),
		Args:    strings.TrimSpace(args),
		Text:    text,
	}
}
