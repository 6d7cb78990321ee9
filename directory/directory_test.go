package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupAgentFromRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/lookup/alice", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]string{"agent_url": "http://alice.example:6000"})
	}))
	defer server.Close()

	client := New(func(o *Options) {
		o.RegistryURL = server.URL
	})

	url, err := client.LookupAgent(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "http://alice.example:6000", url)
}

func TestLookupAgentFallsBackToLocalTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(func(o *Options) {
		o.RegistryURL = server.URL
	})

	url, err := client.LookupAgent(context.Background(), "test_agent")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:6000", url)
}

func TestLookupAgentWithoutRegistryUsesLocalTable(t *testing.T) {
	client := New()

	url, err := client.LookupAgent(context.Background(), "test_agent")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:6000", url)
}

func TestLookupAgentNotFound(t *testing.T) {
	client := New()

	_, err := client.LookupAgent(context.Background(), "bob")
	require.Error(t, err)

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "agent", notFound.Kind)
	assert.Equal(t, "bob", notFound.Name)
}

func TestLookupAgentCachesResolution(t *testing.T) {
	var hits int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"agent_url": "http://alice.example:6000"})
	}))
	defer server.Close()

	client := New(func(o *Options) {
		o.RegistryURL = server.URL
	})

	_, err := client.LookupAgent(context.Background(), "alice")
	require.NoError(t, err)

	_, err = client.LookupAgent(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second lookup should hit the cache")
}

func TestInvalidateAgentForcesRefresh(t *testing.T) {
	var hits int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"agent_url": "http://alice.example:6000"})
	}))
	defer server.Close()

	client := New(func(o *Options) {
		o.RegistryURL = server.URL
	})

	_, err := client.LookupAgent(context.Background(), "alice")
	require.NoError(t, err)

	client.InvalidateAgent("alice")

	_, err = client.LookupAgent(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRegister(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/register", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "alice", payload["agent_id"])
		assert.Equal(t, "http://alice.example:6000", payload["agent_url"])
	}))
	defer server.Close()

	client := New(func(o *Options) {
		o.RegistryURL = server.URL
	})

	err := client.Register(context.Background(), "alice", "http://alice.example:6000")
	assert.NoError(t, err)
}

func TestRegisterStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(func(o *Options) {
		o.RegistryURL = server.URL
	})

	err := client.Register(context.Background(), "alice", "http://alice.example:6000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestRegisterWithoutRegistry(t *testing.T) {
	client := New()

	err := client.Register(context.Background(), "alice", "http://alice.example:6000")
	assert.Error(t, err)
}
