// Package conversation tracks the per-conversation exchange history of a
// bridge. Every routed request appends one Turn; the store is volatile and
// exists for inspection (status surfaces, tests, embedding applications), not
// for durability.
package conversation

import (
	"time"

	"github.com/hupe1980/agentbridge/internal/util"
)

// Turn is one handled request/reply exchange.
type Turn struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`  // classification of the inbound text
	Input   string    `json:"input"` // raw inbound payload
	Reply   string    `json:"reply"` // text returned to the caller
	Created time.Time `json:"created"`
}

// NewTurn builds a Turn with a fresh id and timestamp.
func NewTurn(kind, input, reply string) Turn {
	return Turn{
		ID:      util.NewID(),
		Kind:    kind,
		Input:   input,
		Reply:   reply,
		Created: time.Now(),
	}
}

// Conversation holds the ordered turns of one dialogue.
type Conversation struct {
	ID      string    `json:"id"`
	Turns   []Turn    `json:"turns"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// NewConversation constructs an empty conversation.
func NewConversation(id string) *Conversation {
	now := time.Now()
	return &Conversation{ID: id, Created: now, Updated: now}
}

// Clone returns a deep copy so callers cannot mutate store internals.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Turns = make([]Turn, len(c.Turns))
	copy(clone.Turns, c.Turns)
	return &clone
}

// Store persists conversations keyed by their opaque identifier.
type Store interface {
	// Get returns the conversation for the id, or an empty one if unknown.
	Get(conversationID string) (*Conversation, error)

	// Append records a turn, creating the conversation lazily.
	Append(conversationID string, turn Turn) error
}
