package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnWriteEnvelope(t *testing.T) {
	conn, client, cleanup := newTestConn(t, RoleAgent)
	defer cleanup()

	require.NotEmpty(t, conn.ID)
	require.Equal(t, RoleAgent, conn.Role)

	require.NoError(t, conn.WriteEnvelope(SessionAssigned("ABC234")))

	got := readEnvelope(t, client)
	assert.Equal(t, MessageSessionAssigned, got.Type)
	assert.Equal(t, "ABC234", got.SessionID)
}

func TestConnConcurrentWrites(t *testing.T) {
	conn, client, cleanup := newTestConn(t, RoleAgent)
	defer cleanup()

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.WriteEnvelope(Envelope{
				Type:         MessageCommand,
				SessionID:    "ABC234",
				Command:      CommandNext,
				ControllerID: "ctl-1",
			}))
		}()
	}
	wg.Wait()

	// Every write arrives intact; interleaved frames would fail to parse.
	for i := 0; i < writers; i++ {
		got := readEnvelope(t, client)
		assert.Equal(t, MessageCommand, got.Type)
		assert.Equal(t, CommandNext, got.Command)
	}
}

func TestConnCloseIdempotent(t *testing.T) {
	conn, _, cleanup := newTestConn(t, RoleAgent)
	defer cleanup()

	first := conn.Close()
	second := conn.Close()
	assert.Equal(t, first, second)
	assert.Error(t, conn.WriteEnvelope(SessionAssigned("ABC234")))
}

func TestConnCloseWithCode(t *testing.T) {
	conn, client, cleanup := newTestConn(t, RoleAgent)
	defer cleanup()

	require.NoError(t, conn.CloseWithCode(CloseBadAgentHello, "expected agent_register"))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, CloseBadAgentHello), "expected close code %d, got %v", CloseBadAgentHello, err)
}
