package conversation

import "sync"

// InMemoryStore is a volatile Store implementation holding conversations in a
// process local map. It is safe for concurrent access and best suited for
// tests or single-process bridges. Each returned conversation is cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewInMemoryStore constructs an empty in‑memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*Conversation)}
}

// Get returns an existing conversation (clone) or an empty one for unknown ids.
func (s *InMemoryStore) Get(conversationID string) (*Conversation, error) {
	s.mu.RLock()
	conv, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if ok {
		return conv.Clone(), nil
	}
	return NewConversation(conversationID), nil
}

// Append records a turn, creating the conversation lazily.
func (s *InMemoryStore) Append(conversationID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = NewConversation(conversationID)
		s.conversations[conversationID] = conv
	}
	conv.Turns = append(conv.Turns, turn)
	conv.Updated = turn.Created
	return nil
}
