package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ Store = (*InMemoryStore)(nil)

func TestInMemoryStore_AppendAndGet(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Append("conv1", NewTurn("chat", "hello", "hi there")))
	require.NoError(t, store.Append("conv1", NewTurn("command", "/ping", "[a] Pong!")))

	conv, err := store.Get("conv1")
	require.NoError(t, err)
	assert.Equal(t, "conv1", conv.ID)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "hello", conv.Turns[0].Input)
	assert.Equal(t, "command", conv.Turns[1].Kind)
	assert.NotEmpty(t, conv.Turns[0].ID)
	assert.False(t, conv.Updated.Before(conv.Created))
}

func TestInMemoryStore_GetUnknownReturnsEmpty(t *testing.T) {
	store := NewInMemoryStore()

	conv, err := store.Get("missing")
	require.NoError(t, err)
	assert.Equal(t, "missing", conv.ID)
	assert.Empty(t, conv.Turns)
}

func TestInMemoryStore_CloneIsolation(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Append("conv1", NewTurn("chat", "a", "b")))

	conv, err := store.Get("conv1")
	require.NoError(t, err)
	conv.Turns[0].Reply = "mutated"
	conv.Turns = append(conv.Turns, NewTurn("chat", "x", "y"))

	fresh, err := store.Get("conv1")
	require.NoError(t, err)
	require.Len(t, fresh.Turns, 1)
	assert.Equal(t, "b", fresh.Turns[0].Reply)
}
