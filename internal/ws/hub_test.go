package ws

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.employees)
	assert.Equal(t, 0, hub.ConnectedClients())
}

func TestHub_AddAndRemoveClient(t *testing.T) {
	hub := NewHub()
	client := newClient(newFakeConn(), "emp-1", slog.Default())

	require.NoError(t, hub.Register(client))
	assert.Equal(t, 1, hub.ConnectedClients())
	assert.True(t, hub.InSession("emp-1"))

	hub.Unregister(client)
	assert.Equal(t, 0, hub.ConnectedClients())
	assert.False(t, hub.InSession("emp-1"))

	hub.Unregister(client)
	assert.Equal(t, 0, hub.ConnectedClients(), "second unregister is a no-op")
}

func TestHub_OneSessionPerEmployee(t *testing.T) {
	hub := NewHub()

	first := newClient(newFakeConn(), "emp-1", slog.Default())
	second := newClient(newFakeConn(), "emp-1", slog.Default())
	other := newClient(newFakeConn(), "emp-2", slog.Default())

	require.NoError(t, hub.Register(first))
	assert.ErrorIs(t, hub.Register(second), domain.ErrCaptureInProgress)
	require.NoError(t, hub.Register(other))

	hub.Unregister(second)
	assert.True(t, hub.InSession("emp-1"), "rejected client does not free the slot")

	hub.Unregister(first)
	assert.NoError(t, hub.Register(second))
}

func TestHub_AnonymousClientsAreNotLimited(t *testing.T) {
	hub := NewHub()

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Register(newClient(newFakeConn(), "", slog.Default())))
	}
	assert.Equal(t, 3, hub.ConnectedClients())
	assert.False(t, hub.InSession(""))
}

func TestHub_CancelAllWithoutSessions(t *testing.T) {
	hub := NewHub()
	require.NoError(t, hub.Register(newClient(newFakeConn(), "emp-1", slog.Default())))

	assert.Equal(t, 1, hub.CancelAll())
}
